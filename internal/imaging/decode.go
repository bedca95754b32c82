// Package imaging decodes uploaded images and prepares them for OCR:
// optional crop with bounds clamping, grayscale conversion, adaptive
// binarization and light denoising.
package imaging

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/osoji/rxscan/internal/common"
)

// Decode turns upload bytes into an image. Unsupported or corrupt input
// maps to ErrInvalidInput so the HTTP layer can answer 400.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w: %w", common.ErrInvalidInput, err)
	}
	return img, format, nil
}
