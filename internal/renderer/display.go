package renderer

import (
	"image"
	"math"

	"github.com/genricoloni/screend/internal/domain"
	"github.com/kbinani/screenshot"
	"go.uber.org/zap"
)

// Display is the pixel area of the primary monitor
type Display struct {
	Bounds image.Rectangle
}

// DetectDisplay detects the primary display bounds at startup
func DetectDisplay(logger *zap.Logger) Display {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		logger.Warn("No active displays detected, falling back to 1920x1080")
		return Display{Bounds: image.Rect(0, 0, 1920, 1080)}
	}

	// Use primary monitor (index 0)
	d := Display{Bounds: screenshot.GetDisplayBounds(0)}

	logger.Info("Display detected",
		zap.Int("displays", n),
		zap.Int("width", d.Bounds.Dx()),
		zap.Int("height", d.Bounds.Dy()))

	return d
}

// Resolution is the display size
func (d Display) Resolution() domain.ScreenResolution {
	return domain.ScreenResolution{Width: d.Bounds.Dx(), Height: d.Bounds.Dy()}
}

// ZoneRect converts the percent geometry of zone to display pixels. The result
// is clipped to the display and is never empty.
func (d Display) ZoneRect(zone domain.Zone) image.Rectangle {
	w, h := float64(d.Bounds.Dx()), float64(d.Bounds.Dy())

	x0 := d.Bounds.Min.X + int(math.Round(w*zone.XPercent/100))
	y0 := d.Bounds.Min.Y + int(math.Round(h*zone.YPercent/100))
	x1 := d.Bounds.Min.X + int(math.Round(w*(zone.XPercent+zone.WidthPercent)/100))
	y1 := d.Bounds.Min.Y + int(math.Round(h*(zone.YPercent+zone.HeightPercent)/100))

	r := image.Rect(x0, y0, x1, y1)
	if clipped := r.Intersect(d.Bounds); !clipped.Empty() {
		return clipped
	}
	p := image.Pt(
		min(max(r.Min.X, d.Bounds.Min.X), d.Bounds.Max.X-1),
		min(max(r.Min.Y, d.Bounds.Min.Y), d.Bounds.Max.Y-1),
	)
	return image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))}
}

// Size is the pixel size of a rectangle
func Size(r image.Rectangle) domain.ScreenResolution {
	return domain.ScreenResolution{Width: r.Dx(), Height: r.Dy()}
}
