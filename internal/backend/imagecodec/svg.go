package imagecodec

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const (
	svgSniffLen = 4096
	// DefaultSVGSize is the longest side used when an SVG declares neither width/height nor a viewBox
	DefaultSVGSize = 1024
	// maxSVGSide bounds a declared width or height, larger values are ignored
	maxSVGSide = math.MaxInt32
	// MaxSVGPixels bounds the canvas an SVG is rasterised onto
	MaxSVGPixels = 1 << 28
)

// isSVGData performs a lightweight detection of SVG content from raw bytes
func isSVGData(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	n := min(len(data), svgSniffLen)
	header := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte("xmlns=\"http://www.w3.org/2000/svg\"")) ||
		bytes.Contains(header, []byte("xmlns='http://www.w3.org/2000/svg'"))
}

// svgSize resolves the pixel size an SVG is rendered at: explicit width/height first,
// then the viewBox aspect scaled so the longest side is DefaultSVGSize.
func svgSize(data []byte) (int, int, error) {
	if w, h, ok := parseSVGExplicitSize(data); ok {
		return w, h, nil
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse SVG: %w", err)
	}
	vw, vh := icon.ViewBox.W, icon.ViewBox.H
	if vw <= 0 || vh <= 0 {
		return DefaultSVGSize, DefaultSVGSize, nil
	}

	scale := DefaultSVGSize / math.Max(vw, vh)
	return max(int(math.Round(vw*scale)), 1), max(int(math.Round(vh*scale)), 1), nil
}

// rasterizeSVG renders an SVG document onto a transparent canvas at its resolved size
func rasterizeSVG(data []byte) (*image.RGBA, error) {
	width, height, err := svgSize(data)
	if err != nil {
		return nil, err
	}
	if int64(width)*int64(height) > MaxSVGPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, width, height)
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, dst, dst.Bounds())
	dasher := rasterx.NewDasher(width, height, scanner)
	icon.Draw(dasher, 1.0)

	return dst, nil
}

// parseSVGExplicitSize extracts width and height attributes from the root svg element.
// Percentages and missing attributes are reported as not ok.
func parseSVGExplicitSize(data []byte) (int, int, bool) {
	n := min(len(data), 8192)
	s := strings.ToLower(string(data[:n]))

	i := strings.Index(s, "<svg")
	if i < 0 {
		return 0, 0, false
	}
	tag := s[i:]
	if j := strings.IndexByte(tag, '>'); j >= 0 {
		tag = tag[:j]
	}

	w, wOk := parseNumericAttr(tag, "width")
	h, hOk := parseNumericAttr(tag, "height")
	if wOk && hOk {
		return w, h, true
	}
	return 0, 0, false
}

// parseNumericAttr extracts the leading integer of a quoted attribute value (e.g. width="123px")
func parseNumericAttr(tag, attr string) (int, bool) {
	pos := -1
	// Match " width=" so that stroke-width and similar attributes are skipped
	for _, sep := range []string{" ", "\n", "\t", "\r"} {
		if p := strings.Index(tag, sep+attr+"="); p >= 0 && (pos < 0 || p < pos) {
			pos = p + len(sep) + len(attr) + 1
		}
	}
	if pos < 0 || pos >= len(tag) {
		return 0, false
	}

	quote := tag[pos]
	if quote != '"' && quote != '\'' {
		return 0, false
	}
	val := tag[pos+1:]
	if end := strings.IndexByte(val, quote); end >= 0 {
		val = val[:end]
	}
	if strings.Contains(val, "%") {
		return 0, false
	}

	num := 0
	found := false
	for i := 0; i < len(val); i++ {
		ch := val[i]
		if ch >= '0' && ch <= '9' {
			found = true
			d := int(ch - '0')
			if num > (maxSVGSide-d)/10 {
				return 0, false
			}
			num = num*10 + d
		} else if found {
			break
		}
	}
	if !found || num <= 0 {
		return 0, false
	}
	return num, true
}
