package capture

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/entrhq/snapcrop/pkg/selection"
)

// ErrInvalidPixelRatio is returned for a pixel ratio that is not a
// positive finite number.
var ErrInvalidPixelRatio = errors.New("invalid pixel ratio")

// CropBounds returns the device-pixel source rectangle of a CSS-pixel
// selection and the size of the surface it is drawn onto. Both have the
// same size: round(width*ratio) x round(height*ratio).
func CropBounds(rect selection.Rect, ratio float64) (src image.Rectangle, size image.Point, err error) {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio <= 0 {
		return image.Rectangle{}, image.Point{}, fmt.Errorf("%w: %v", ErrInvalidPixelRatio, ratio)
	}
	scaled := rect.Scale(ratio)
	size = image.Pt(int(math.Round(scaled.Width)), int(math.Round(scaled.Height)))
	origin := image.Pt(int(math.Round(scaled.Left)), int(math.Round(scaled.Top)))
	return image.Rectangle{Min: origin, Max: origin.Add(size)}, size, nil
}

// Crop draws the device-pixel region of frame under rect onto a new
// surface at the origin. Pixels outside the frame stay transparent. A
// zero-area selection yields an empty image.
func Crop(frame image.Image, rect selection.Rect, ratio float64) (*image.RGBA, error) {
	src, size, err := CropBounds(rect, ratio)
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rectangle{Max: size})
	if size.X == 0 || size.Y == 0 {
		return dst, nil
	}

	// Decoded frames may not start at (0,0).
	src = src.Add(frame.Bounds().Min)
	draw.Copy(dst, image.Point{}, frame, src, draw.Src, nil)
	return dst, nil
}

// Thumbnail scales img down to fit within maxW x maxH, keeping its aspect
// ratio. Images that already fit are returned unchanged.
func Thumbnail(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 || maxW <= 0 || maxH <= 0 {
		return img
	}
	if b.Dx() <= maxW && b.Dy() <= maxH {
		return img
	}

	scale := math.Min(float64(maxW)/float64(b.Dx()), float64(maxH)/float64(b.Dy()))
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
