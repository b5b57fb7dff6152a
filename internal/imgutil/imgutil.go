package imgutil

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
)

// CompressToJPEG re-encodes any decodable image as JPEG.
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DominantColor averages a sampled grid of pixels and returns "#rrggbb".
// Undecodable input yields "transparent".
func DominantColor(data []byte) string {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "transparent"
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return "transparent"
	}

	const samples = 32
	stepX := max(bounds.Dx()/samples, 1)
	stepY := max(bounds.Dy()/samples, 1)

	var r, g, b, n uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			cr, cg, cb, ca := img.At(x, y).RGBA()
			if ca == 0 {
				continue
			}
			r += uint64(cr >> 8)
			g += uint64(cg >> 8)
			b += uint64(cb >> 8)
			n++
		}
	}
	if n == 0 {
		return "transparent"
	}
	return fmt.Sprintf("#%02x%02x%02x", r/n, g/n, b/n)
}

// DetectMime trusts a declared image type and sniffs otherwise, falling back
// to image/jpeg.
func DetectMime(declared string, data []byte) string {
	mimeType := strings.TrimSpace(declared)
	if strings.Contains(mimeType, ";") {
		mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if strings.Contains(mimeType, ";") {
		mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	if mimeType == "" || mimeType == "application/octet-stream" || mimeType == "text/plain" {
		mimeType = "image/jpeg"
	}
	return mimeType
}
