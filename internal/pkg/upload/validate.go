package upload

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for uploads the QR scanner has no decoder for.
var ErrUnsupported = errors.New("only JPG, PNG, GIF, WEBP and BMP images can be scanned")

// decoders maps sniffed MIME types to the image format registered with
// image.Decode by the credential scanner.
var decoders = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/bmp":  "bmp",
}

var scanExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true,
}

// ScanFormat checks that an upload is a raster image the scanner can decode
// and returns its format. head is the first bytes of the file. A phone
// camera upload often has no usable filename, so an empty one is accepted
// and the content decides.
func ScanFormat(filename string, head []byte) (string, error) {
	if ext := strings.ToLower(filepath.Ext(filename)); filename != "" && !scanExt[ext] {
		return "", ErrUnsupported
	}
	// SVG and HTML sniff as text and fall through here.
	format, ok := decoders[http.DetectContentType(head)]
	if !ok {
		return "", ErrUnsupported
	}
	return format, nil
}
