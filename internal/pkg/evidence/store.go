package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"
)

// ErrMissing reports that an evidence reference does not resolve to an
// uploaded image.
var ErrMissing = errors.New("evidence not found")

// Checker confirms that a screenshot referenced by a payment proof exists.
type Checker interface {
	Check(ctx context.Context, ref string) error
}

// Disabled accepts every reference.
type Disabled struct{}

func (Disabled) Check(context.Context, string) error { return nil }

type headObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Checker verifies references with a HEAD request against the bucket.
type S3Checker struct {
	api    headObjectAPI
	bucket string
	prefix string
}

// NewChecker returns an S3 checker, or Disabled when the check is off.
func NewChecker(cfg *Config) (Checker, error) {
	if cfg == nil || !cfg.Enabled {
		log.Info("[Evidence] Evidence check disabled")
		return Disabled{}, nil
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(context.Background(), &s3.HeadBucketInput{Bucket: aws.String(cfg.BucketName)}); err != nil {
		return nil, fmt.Errorf("bucket %s not accessible: %w", cfg.BucketName, err)
	}

	log.Infof("[Evidence] Checking payment evidence in bucket: %s", cfg.BucketName)
	return newS3Checker(client, cfg.BucketName, cfg.KeyPrefix), nil
}

func newS3Checker(api headObjectAPI, bucket, prefix string) *S3Checker {
	return &S3Checker{api: api, bucket: bucket, prefix: prefix}
}

// ObjectKey extracts the object key from "s3://bucket/key" or a bare key.
func (c *S3Checker) ObjectKey(ref string) (string, error) {
	key := strings.TrimSpace(ref)
	if rest, ok := strings.CutPrefix(key, "s3://"); ok {
		bucket, k, found := strings.Cut(rest, "/")
		if !found || bucket != c.bucket {
			return "", fmt.Errorf("evidence must live in bucket %s", c.bucket)
		}
		key = k
	}
	if key == "" || strings.Contains(key, "..") {
		return "", errors.New("invalid evidence reference")
	}
	if c.prefix != "" && !strings.HasPrefix(key, c.prefix) {
		return "", fmt.Errorf("evidence must be stored under %s", c.prefix)
	}
	return key, nil
}

func (c *S3Checker) Check(ctx context.Context, ref string) error {
	key, err := c.ObjectKey(ref)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissing, err)
	}

	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return ErrMissing
		}
		return fmt.Errorf("evidence lookup failed: %w", err)
	}

	if ct := aws.ToString(out.ContentType); ct != "" && !strings.HasPrefix(ct, "image/") {
		return fmt.Errorf("%w: unexpected content type %s", ErrMissing, ct)
	}
	return nil
}
