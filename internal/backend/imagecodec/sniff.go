package imagecodec

import (
	"bytes"
	"net/http"
)

const SniffLen = 512

var supportedContentTypes = map[string]bool{
	"image/jpeg":    true,
	"image/png":     true,
	"image/gif":     true,
	"image/webp":    true,
	"image/bmp":     true,
	"image/tiff":    true,
	"image/svg+xml": true,
}

// SniffContentType reports the MIME type of the leading bytes of a file.
// It extends http.DetectContentType with TIFF and SVG detection.
func SniffContentType(data []byte) string {
	if bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")) {
		return "image/tiff"
	}
	if isSVGData(data) {
		return "image/svg+xml"
	}
	return http.DetectContentType(data)
}

// IsSupportedContentType reports whether a sniffed MIME type can be decoded
func IsSupportedContentType(contentType string) bool {
	return supportedContentTypes[contentType]
}
