package evidence

import (
	"errors"

	"github.com/ManuelReschke/CertLedger/internal/pkg/env"
)

// Config holds the location of uploaded payment screenshots.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	// KeyPrefix restricts evidence references to one folder of the bucket.
	KeyPrefix string
	Enabled   bool
}

// LoadConfig loads evidence storage configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("EVIDENCE_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("EVIDENCE_S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("EVIDENCE_S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("EVIDENCE_S3_BUCKET", ""),
		EndpointURL:     env.GetEnv("EVIDENCE_S3_ENDPOINT_URL", ""),
		KeyPrefix:       env.GetEnv("EVIDENCE_KEY_PREFIX", "payment-proofs/"),
		Enabled:         env.GetEnvBool("EVIDENCE_CHECK_ENABLED", false),
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("EVIDENCE_S3_ACCESS_KEY_ID is required when the evidence check is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("EVIDENCE_S3_SECRET_ACCESS_KEY is required when the evidence check is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("EVIDENCE_S3_BUCKET is required when the evidence check is enabled")
		}
	}

	return config, nil
}
