package credential

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	zxqrcode "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
	"github.com/ManuelReschke/CertLedger/internal/pkg/upload"
)

const (
	// DefaultMaxScanBytes bounds how much of an upload is read.
	DefaultMaxScanBytes = 10 << 20
	// DefaultMaxScanDimension bounds the image edge fed to the decoder.
	DefaultMaxScanDimension = 1600
	// MaxScanPixels bounds width*height before an image is decoded.
	MaxScanPixels = 40_000_000
)

// ErrNoCodeFound is returned for unreadable images and images without a
// QR code. The caller can retry with a better photo.
var ErrNoCodeFound = apperr.E(apperr.NoCodeFound, "no QR code found in image")

// Scanner decodes verification QR codes from uploaded photos or scans.
type Scanner struct {
	maxBytes int64
	maxDim   int
	buffers  sync.Pool
}

func NewScanner(maxBytes int64, maxDim int) *Scanner {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxScanBytes
	}
	if maxDim <= 0 {
		maxDim = DefaultMaxScanDimension
	}
	return &Scanner{
		maxBytes: maxBytes,
		maxDim:   maxDim,
		buffers: sync.Pool{New: func() any {
			return new(bytes.Buffer)
		}},
	}
}

// ScanSession holds a decoded, normalised image and its read buffer until
// Close is called.
type ScanSession struct {
	scanner *Scanner
	buf     *bytes.Buffer
	img     image.Image
	closed  bool
}

// Open reads and prepares an image. The returned session must be closed.
func (s *Scanner) Open(r io.Reader, filename string) (*ScanSession, error) {
	buf := s.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	session := &ScanSession{scanner: s, buf: buf}

	n, err := io.Copy(buf, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		session.Close()
		return nil, apperr.E(apperr.NoCodeFound, "could not read image", err)
	}
	if n > s.maxBytes {
		session.Close()
		return nil, apperr.E(apperr.Invalid, "image too large")
	}

	data := buf.Bytes()
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if _, err := upload.ScanFormat(filename, head); err != nil {
		session.Close()
		return nil, apperr.E(apperr.NoCodeFound, err.Error(), err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		session.Close()
		return nil, apperr.E(apperr.NoCodeFound, "could not decode image", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxScanPixels {
		session.Close()
		return nil, apperr.E(apperr.Invalid, "image dimensions too large")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		session.Close()
		return nil, apperr.E(apperr.NoCodeFound, "could not decode image", err)
	}

	if b := img.Bounds(); b.Dx() > s.maxDim || b.Dy() > s.maxDim {
		img = imaging.Fit(img, s.maxDim, s.maxDim, imaging.Lanczos)
	}
	img = applyOrientation(img, readOrientation(data))
	session.img = imaging.Grayscale(img)
	return session, nil
}

// Decode returns the raw text carried by the QR code in the image.
func (ss *ScanSession) Decode() (string, error) {
	if ss.closed || ss.img == nil {
		return "", errors.New("scan session closed")
	}

	text, err := decodeQR(ss.img)
	if err == nil {
		return text, nil
	}
	// Light-on-dark prints.
	if text, err = decodeQR(imaging.Invert(ss.img)); err == nil {
		return text, nil
	}
	return "", ErrNoCodeFound
}

// Close releases the session's buffer. It is safe to call more than once.
func (ss *ScanSession) Close() error {
	if ss.closed {
		return nil
	}
	ss.closed = true
	ss.img = nil
	if ss.buf != nil {
		ss.buf.Reset()
		ss.scanner.buffers.Put(ss.buf)
		ss.buf = nil
	}
	return nil
}

// Scan opens a session, decodes the QR code and returns the credential ID
// it points at.
func (s *Scanner) Scan(r io.Reader, filename string) (string, error) {
	session, err := s.Open(r, filename)
	if err != nil {
		return "", err
	}
	defer session.Close()

	text, err := session.Decode()
	if err != nil {
		return "", err
	}
	id := NormalizeID(Decode(text))
	if id == "" {
		return "", ErrNoCodeFound
	}
	return id, nil
}

func decodeQR(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", err
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := zxqrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", err
	}
	return result.GetText(), nil
}

// readOrientation returns the EXIF orientation, or 1 when absent.
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return o
}

func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}
