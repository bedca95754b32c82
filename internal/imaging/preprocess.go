package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"
)

var (
	ink   = color.Gray{Y: 0}
	paper = color.Gray{Y: 255}
)

const (
	// maxDimension caps the long edge before OCR; anything larger is
	// scaled down to keep memory and recognition time bounded.
	maxDimension = 3000
	// adaptiveBlock is the odd window size for local thresholding.
	adaptiveBlock = 11
	// adaptiveC biases the local mean so faint background texture stays white.
	adaptiveC = 2
)

// Preprocess runs the OCR preparation chain: grayscale, optional downscale,
// adaptive binarization, then a median pass to knock out salt noise.
func Preprocess(img image.Image) *image.Gray {
	gray := scaleToFit(ToGray(img), maxDimension)
	bin := adaptiveThreshold(gray, adaptiveBlock, adaptiveC)
	return medianDenoise(bin)
}

// ToGray converts any image to 8-bit grayscale with a zero-based origin.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

func scaleToFit(src *image.Gray, maxDim int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}
	if w >= h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// adaptiveThreshold binarizes against the local mean of a block x block
// window minus bias c: pixels brighter than the local mean stay white,
// everything else becomes ink. An integral image keeps it O(w*h).
func adaptiveThreshold(src *image.Gray, block, c int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	// integral[y][x] holds the sum over the rectangle [0,x) x [0,y)
	stride := w + 1
	integral := make([]uint64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum uint64
		for x := 0; x < w; x++ {
			rowSum += uint64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + rowSum
		}
	}

	r := block / 2
	for y := 0; y < h; y++ {
		y0, y1 := maxInt(0, y-r), minInt(h-1, y+r)
		for x := 0; x < w; x++ {
			x0, x1 := maxInt(0, x-r), minInt(w-1, x+r)
			area := uint64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral[(y1+1)*stride+x1+1] -
				integral[y0*stride+x1+1] -
				integral[(y1+1)*stride+x0] +
				integral[y0*stride+x0]
			mean := int(sum / area)

			v := int(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			if v > mean-c {
				dst.SetGray(x, y, paper)
			} else {
				dst.SetGray(x, y, ink)
			}
		}
	}
	return dst
}

// medianDenoise applies a 3x3 median to a binary image. With only two
// levels the median reduces to a majority vote over the neighborhood.
func medianDenoise(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dark int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := clamp(x+dx, 0, w-1), clamp(y+dy, 0, h-1)
					if src.GrayAt(b.Min.X+nx, b.Min.Y+ny).Y < 128 {
						dark++
					}
				}
			}
			if dark >= 5 {
				dst.SetGray(x, y, ink)
			} else {
				dst.SetGray(x, y, paper)
			}
		}
	}
	return dst
}

// SavePNG writes img to path, creating or truncating the file.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
