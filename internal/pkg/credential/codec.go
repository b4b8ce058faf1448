package credential

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ManuelReschke/CertLedger/internal/pkg/env"
	"github.com/skip2/go-qrcode"
)

// VerifyPath is the fixed path segment QR payloads point at.
const VerifyPath = "/verify-credential/"

const defaultQRSize = 256

var verifyPattern = regexp.MustCompile(`/verify-credential/([A-Za-z0-9-]+)`)

// Config configures payload encoding and QR rendering.
type Config struct {
	// VerifyBaseURL is the public origin of the verification page,
	// e.g. https://learn.example.com
	VerifyBaseURL string
	// QRSize is the rendered PNG edge length in pixels.
	QRSize int
}

// LoadConfig reads the codec configuration from the environment.
func LoadConfig() Config {
	return Config{
		VerifyBaseURL: env.GetEnv("VERIFY_BASE_URL", "http://localhost:4000"),
		QRSize:        env.GetEnvInt("QR_SIZE", defaultQRSize),
	}
}

// Codec encodes credential IDs into verification URLs and QR images and
// extracts IDs from scanned text.
type Codec struct {
	baseURL string
	qrSize  int
}

func NewCodec(cfg Config) (*Codec, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.VerifyBaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid verify base url %q", cfg.VerifyBaseURL)
	}
	size := cfg.QRSize
	if size <= 0 {
		size = defaultQRSize
	}
	return &Codec{baseURL: base, qrSize: size}, nil
}

// EncodeVerificationPayload returns the verification URL for id. The key is
// never part of the payload.
func (c *Codec) EncodeVerificationPayload(id string) string {
	return c.baseURL + VerifyPath + url.PathEscape(NormalizeID(id))
}

// Decode extracts the credential ID from scanned text. Text that is not a
// verification URL is returned trimmed so operators can type IDs directly.
func (c *Codec) Decode(raw string) string {
	return Decode(raw)
}

// Decode is the configuration-free form of Codec.Decode.
func Decode(raw string) string {
	text := strings.TrimSpace(raw)
	if m := verifyPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

// RenderQR encodes payload as a PNG QR code with medium error correction.
func (c *Codec) RenderQR(payload string) ([]byte, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, c.qrSize)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}
