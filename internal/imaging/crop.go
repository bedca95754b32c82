package imaging

import (
	"encoding/json"
	"fmt"
	"image"
)

// CropRect is a user-supplied crop rectangle in pixel coordinates.
type CropRect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// ParseCrop decodes the crop_data form value. ok is false when the payload
// is valid JSON but misses any of the four fields; such input skips the
// crop without being an error. Broken JSON is returned as an error so the
// caller can log a warning and continue with the full image.
func ParseCrop(raw string) (rect CropRect, ok bool, err error) {
	var payload struct {
		X      *float64 `json:"x"`
		Y      *float64 `json:"y"`
		Width  *float64 `json:"width"`
		Height *float64 `json:"height"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return CropRect{}, false, fmt.Errorf("parse crop data: %w", err)
	}
	if payload.X == nil || payload.Y == nil || payload.Width == nil || payload.Height == nil {
		return CropRect{}, false, nil
	}
	return CropRect{
		X:      int(*payload.X),
		Y:      int(*payload.Y),
		Width:  int(*payload.Width),
		Height: int(*payload.Height),
	}, true, nil
}

// ClampTo forces the rectangle inside bounds: the origin lands on a real
// pixel and the size stays at least 1x1 without crossing the far edge.
// Holds for any input, including negative or oversized values.
func (r CropRect) ClampTo(bounds image.Rectangle) CropRect {
	w, h := bounds.Dx(), bounds.Dy()

	r.X = clamp(r.X, 0, w-1)
	r.Y = clamp(r.Y, 0, h-1)
	r.Width = clamp(r.Width, 1, w-r.X)
	r.Height = clamp(r.Height, 1, h-r.Y)
	return r
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Crop clamps rect to the image and returns the sub-image. The returned
// image shares pixels with img and keeps img's coordinate space.
func Crop(img image.Image, rect CropRect) (image.Image, error) {
	bounds := img.Bounds()
	rect = rect.ClampTo(bounds)

	sub := image.Rect(
		bounds.Min.X+rect.X,
		bounds.Min.Y+rect.Y,
		bounds.Min.X+rect.X+rect.Width,
		bounds.Min.Y+rect.Y+rect.Height,
	).Intersect(bounds)
	if sub.Empty() {
		return nil, fmt.Errorf("crop %v outside image bounds %v", rect, bounds)
	}

	cropper, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("image type %T does not support cropping", img)
	}
	return cropper.SubImage(sub), nil
}
