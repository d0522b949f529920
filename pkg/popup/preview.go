package popup

import (
	"fmt"
	"image"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/snapcrop/pkg/capture"
)

const (
	previewCols = 48
	previewRows = 16
)

// renderPreview draws img with half blocks: each cell shows two pixel
// rows, the upper one as foreground and the lower one as background.
func renderPreview(img image.Image, cols, rows int) string {
	if img == nil || img.Bounds().Empty() || cols <= 0 || rows <= 0 {
		return ""
	}
	thumb := capture.Thumbnail(img, cols, rows*2)
	b := thumb.Bounds()

	var sb strings.Builder
	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		for x := b.Min.X; x < b.Max.X; x++ {
			style := lipgloss.NewStyle().Foreground(hexColor(thumb, x, y))
			if y+1 < b.Max.Y {
				style = style.Background(hexColor(thumb, x, y+1))
			}
			sb.WriteString(style.Render("▀"))
		}
		if y+2 < b.Max.Y {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func hexColor(img image.Image, x, y int) lipgloss.Color {
	r, g, b, _ := img.At(x, y).RGBA()
	return lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", r>>8, g>>8, b>>8))
}
