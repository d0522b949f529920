package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/entrhq/snapcrop/pkg/messaging"
	"github.com/entrhq/snapcrop/pkg/selection"
)

// FormatPNG is the only raster format the pipeline produces.
const FormatPNG = "png"

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// RawFrame is the encoded image of the entire visible tab.
type RawFrame struct {
	Format string
	Data   []byte
}

// Decode decodes the frame into an image.
func (f RawFrame) Decode() (image.Image, error) {
	if f.Format != FormatPNG {
		return nil, fmt.Errorf("unsupported frame format %q", f.Format)
	}
	img, err := png.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

// Payload converts the frame to its wire form.
func (f RawFrame) Payload() messaging.RawFrame {
	return messaging.RawFrame{Format: f.Format, Data: f.Data}
}

// RawFrameFromPayload converts a wire frame.
func RawFrameFromPayload(p messaging.RawFrame) RawFrame {
	return RawFrame{Format: p.Format, Data: p.Data}
}

// CroppedImage is the final image of a selection. It is a value: copies
// share nothing once they cross a context boundary.
type CroppedImage struct {
	Width      int
	Height     int
	Format     string
	Data       []byte
	PixelRatio float64
	Rect       selection.Rect
}

// Empty reports a degenerate image from a zero-area selection.
func (c CroppedImage) Empty() bool {
	return c.Width == 0 || c.Height == 0
}

// DataURL renders the image the way a canvas does. A degenerate image
// renders as "data:,".
func (c CroppedImage) DataURL() string {
	if c.Empty() || len(c.Data) == 0 {
		return "data:,"
	}
	return "data:image/" + c.Format + ";base64," + base64.StdEncoding.EncodeToString(c.Data)
}

// Decode decodes the image. A degenerate image decodes to an empty RGBA.
func (c CroppedImage) Decode() (image.Image, error) {
	if c.Empty() {
		return image.NewRGBA(image.Rect(0, 0, c.Width, c.Height)), nil
	}
	return RawFrame{Format: c.Format, Data: c.Data}.Decode()
}

// Payload converts the image to its wire form.
func (c CroppedImage) Payload() messaging.Image {
	return messaging.Image{
		Width:      c.Width,
		Height:     c.Height,
		Format:     c.Format,
		Data:       c.Data,
		PixelRatio: c.PixelRatio,
		Rect: messaging.Rect{
			Left:   c.Rect.Left,
			Top:    c.Rect.Top,
			Width:  c.Rect.Width,
			Height: c.Rect.Height,
		},
	}
}

// CroppedImageFromPayload converts a wire image.
func CroppedImageFromPayload(p messaging.Image) CroppedImage {
	return CroppedImage{
		Width:      p.Width,
		Height:     p.Height,
		Format:     p.Format,
		Data:       p.Data,
		PixelRatio: p.PixelRatio,
		Rect: selection.Rect{
			Left:   p.Rect.Left,
			Top:    p.Rect.Top,
			Width:  p.Rect.Width,
			Height: p.Rect.Height,
		},
	}
}

// EncodePNG encodes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
