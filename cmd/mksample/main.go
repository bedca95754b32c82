// mksample draws a synthetic prescription image for demos and OCR smoke
// tests: clinic header, patient block and two Rx lines, with optional scan
// noise.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	sampleWidth  = 800
	sampleHeight = 1000
)

func main() {
	var (
		out   = flag.String("out", "sample_prescription.png", "output PNG path")
		clean = flag.Bool("clean", false, "skip the scan-noise pass")
		seed  = flag.Int64("seed", 1, "noise seed")
	)
	flag.Parse()

	img := drawPrescription()
	if !*clean {
		img = addScanNoise(img, *seed)
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: create %s: %v\n", *out, err)
		os.Exit(1)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		fmt.Fprintf(os.Stderr, "Error: encode %s: %v\n", *out, err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: close %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("Sample prescription image created at: %s\n", *out)
}

func drawPrescription() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, sampleWidth, sampleHeight))
	for y := 0; y < sampleHeight; y++ {
		for x := 0; x < sampleWidth; x++ {
			img.Set(x, y, color.White)
		}
	}

	drawText(img, 50, 50, "Dr. Smith Medical Clinic")
	drawText(img, 50, 90, "123 Health Street, Medical City")
	drawText(img, 50, 130, "Phone: (123) 456-7890")

	drawRule(img, 50, sampleWidth-50, 180)

	drawText(img, 50, 200, "Patient: John Doe")
	drawText(img, 50, 240, "Date: 2023-10-15")

	drawText(img, 50, 300, "Rx:")
	drawText(img, 100, 350, "Amoxicillin 500mg")
	drawText(img, 100, 390, "Take 1 capsule three times daily for 7 days")
	drawText(img, 100, 450, "Metformin 1000mg")
	drawText(img, 100, 490, "Take 1 tablet twice daily with meals")

	drawText(img, 50, 600, "Signature: ___________________")

	return img
}

func drawText(dst *image.RGBA, x, y int, text string) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func drawRule(dst *image.RGBA, x0, x1, y int) {
	for x := x0; x <= x1; x++ {
		dst.Set(x, y, color.Black)
		dst.Set(x, y+1, color.Black)
	}
}

// addScanNoise perturbs pixel values and applies a 3x3 box blur so the
// output resembles a scanned page rather than clean render output.
func addScanNoise(src *image.RGBA, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	b := src.Bounds()

	noisy := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := src.At(x, y).RGBA()
			n := rng.NormFloat64() * 5
			noisy.Set(x, y, color.RGBA{
				R: clampByte(float64(r>>8) + n),
				G: clampByte(float64(g>>8) + n),
				B: clampByte(float64(bl>>8) + n),
				A: 255,
			})
		}
	}

	blurred := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var sumR, sumG, sumB, cnt int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < b.Min.X || nx >= b.Max.X || ny < b.Min.Y || ny >= b.Max.Y {
						continue
					}
					r, g, bl, _ := noisy.At(nx, ny).RGBA()
					sumR += int(r >> 8)
					sumG += int(g >> 8)
					sumB += int(bl >> 8)
					cnt++
				}
			}
			blurred.Set(x, y, color.RGBA{
				R: uint8(sumR / cnt),
				G: uint8(sumG / cnt),
				B: uint8(sumB / cnt),
				A: 255,
			})
		}
	}
	return blurred
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
