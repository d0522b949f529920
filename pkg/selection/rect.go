package selection

import (
	"fmt"
	"math"
)

// Point is a viewport-relative pointer position in CSS pixels.
type Point struct {
	X float64
	Y float64
}

// Rect is a viewport-relative rectangle in CSS pixels. Width and Height
// are never negative.
type Rect struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Normalize builds the rectangle spanned by two drag endpoints regardless
// of drag direction.
func Normalize(start, end Point) Rect {
	return Rect{
		Left:   math.Min(start.X, end.X),
		Top:    math.Min(start.Y, end.Y),
		Width:  math.Abs(end.X - start.X),
		Height: math.Abs(end.Y - start.Y),
	}
}

// Empty reports a zero-area rectangle.
func (r Rect) Empty() bool {
	return r.Width == 0 || r.Height == 0
}

// Scale returns the rectangle in device pixels for the given pixel ratio.
func (r Rect) Scale(ratio float64) Rect {
	return Rect{
		Left:   r.Left * ratio,
		Top:    r.Top * ratio,
		Width:  r.Width * ratio,
		Height: r.Height * ratio,
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("{%g,%g,%g,%g}", r.Left, r.Top, r.Width, r.Height)
}
