package credential

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"regexp"
	"strings"
	"testing"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(Config{VerifyBaseURL: "https://learn.example.com/"})
	require.NoError(t, err)
	return c
}

func TestRandomString(t *testing.T) {
	s, err := RandomString(KeyLength)
	require.NoError(t, err)
	assert.Len(t, s, KeyLength)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-Z]+$`), s)

	_, err = RandomString(0)
	assert.Error(t, err)
}

func TestRandomStringUniqueness(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		s, err := RandomString(IDRandomLength)
		require.NoError(t, err)
		if seen[s] {
			t.Fatalf("duplicate random string %q", s)
		}
		seen[s] = true
	}
}

func TestInitials(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Intro to Go Programming", "ITGP"},
		{"Full-Stack Web Development Bootcamp Extra", "FSWD"},
		{"  data   science ", "DS"},
		{"", ""},
		{"!!!", ""},
		{"Über Design", "D"},
	}
	for _, tt := range tests {
		if got := Initials(tt.title); got != tt.want {
			t.Fatalf("Initials(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestNewCredentialID(t *testing.T) {
	id, err := NewCredentialID(models.CredentialCourse, "Intro to Go")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^CRS-ITG-[0-9A-Z]{12}$`), id)

	id, err = NewCredentialID(models.CredentialInternship, "")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^INT-[0-9A-Z]{12}$`), id)

	id, err = NewCredentialID(models.CredentialCustom, "Hackathon Winner")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "CUS-HW-"))

	_, err = NewCredentialID("bogus", "x")
	assert.Error(t, err)
}

func TestNewCodecRejectsBadBaseURL(t *testing.T) {
	_, err := NewCodec(Config{VerifyBaseURL: "not a url"})
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	url := c.EncodeVerificationPayload("crs-itg-abc123")
	assert.Equal(t, "https://learn.example.com/verify-credential/CRS-ITG-ABC123", url)
	assert.Equal(t, "CRS-ITG-ABC123", c.Decode(url))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://x.test/verify-credential/CRS-AB-123", "CRS-AB-123"},
		{"https://x.test/verify-credential/CRS-AB-123?utm=qr#top", "CRS-AB-123"},
		{"http://other/app/verify-credential/INT-9/extra", "INT-9"},
		{"  CUS-HW-XYZ  ", "CUS-HW-XYZ"},
		{"https://x.test/verify/CRS-1", "https://x.test/verify/CRS-1"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Decode(tt.raw), "Decode(%q)", tt.raw)
	}
}

func TestRenderAndScanRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	id, err := NewCredentialID(models.CredentialCourse, "Intro to Go")
	require.NoError(t, err)

	pngBytes, err := c.RenderQR(c.EncodeVerificationPayload(id))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pngBytes, []byte("\x89PNG")))

	scanner := NewScanner(0, 0)
	got, err := scanner.Scan(bytes.NewReader(pngBytes), "qr.png")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestScanBlankImageHasNoCode(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	_, err := NewScanner(0, 0).Scan(&buf, "blank.png")
	require.Error(t, err)
	assert.Equal(t, apperr.NoCodeFound, apperr.KindOf(err))
}

func TestScanMalformedImage(t *testing.T) {
	data := append([]byte{}, pngHeadForTest...)
	data = append(data, []byte("garbage")...)

	_, err := NewScanner(0, 0).Scan(bytes.NewReader(data), "broken.png")
	require.Error(t, err)
	assert.Equal(t, apperr.NoCodeFound, apperr.KindOf(err))
}

func TestScanRejectsOversizedUpload(t *testing.T) {
	_, err := NewScanner(8, 0).Scan(bytes.NewReader(make([]byte, 64)), "big.png")
	require.Error(t, err)
	assert.Equal(t, apperr.Invalid, apperr.KindOf(err))
}

func TestScanSessionCloseIsIdempotent(t *testing.T) {
	c := newTestCodec(t)
	pngBytes, err := c.RenderQR(c.EncodeVerificationPayload("CRS-1"))
	require.NoError(t, err)

	session, err := NewScanner(0, 0).Open(bytes.NewReader(pngBytes), "qr.png")
	require.NoError(t, err)
	require.NoError(t, session.Close())
	require.NoError(t, session.Close())

	_, err = session.Decode()
	assert.Error(t, err)
}

var pngHeadForTest = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

// pngHeader returns a PNG that declares w x h pixels but carries no image data.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 0 // grayscale

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestScanRejectsHugeDimensions(t *testing.T) {
	tests := []struct {
		name string
		w, h uint32
	}{
		{"square", 30000, 30000},
		{"wide", 200000, 400},
	}
	for _, tt := range tests {
		_, err := NewScanner(0, 0).Open(bytes.NewReader(pngHeader(tt.w, tt.h)), "bomb.png")
		if apperr.KindOf(err) != apperr.Invalid {
			t.Fatalf("%s: got %v, want invalid", tt.name, err)
		}
	}
}
