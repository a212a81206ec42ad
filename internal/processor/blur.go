package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // GIF format support
	"image/jpeg"
	_ "image/png" // PNG format support
	"math"

	"github.com/disintegration/imaging"
	"github.com/genricoloni/screend/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultBlurRadius = 15.0
	defaultQuality    = 90
)

// ProcessorConfig holds configuration for image processing
type ProcessorConfig struct {
	BlurRadius float64
	Quality    int
}

// BlurProcessor fits an image into a zone rectangle: the original is scaled to
// fit and centred over a blurred, cropped fill of itself, so letterboxed areas
// never show black bars.
type BlurProcessor struct {
	logger *zap.Logger
	config ProcessorConfig
}

// NewBlurProcessor creates a new blur-based image processor
func NewBlurProcessor(logger *zap.Logger) *BlurProcessor {
	return &BlurProcessor{
		logger: logger,
		config: ProcessorConfig{
			BlurRadius: defaultBlurRadius,
			Quality:    defaultQuality,
		},
	}
}

// Fit renders imageData at exactly size and returns it JPEG-encoded
func (p *BlurProcessor) Fit(ctx context.Context, imageData []byte, size domain.ScreenResolution) ([]byte, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("invalid target size: %dx%d", size.Width, size.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dy() == 0 || bounds.Dx() == 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Debug("Creating blurred fill", zap.Int("w", size.Width), zap.Int("h", size.Height))
	background := imaging.Fill(img, size.Width, size.Height, imaging.Center, imaging.Lanczos)
	background = imaging.Blur(background, p.config.BlurRadius)

	fw, fh := fitSize(bounds.Dx(), bounds.Dy(), size.Width, size.Height)
	foreground := imaging.Resize(img, fw, fh, imaging.Lanczos)
	offsetX := (size.Width - fw) / 2
	offsetY := (size.Height - fh) / 2
	result := imaging.Paste(background, foreground, image.Pt(offsetX, offsetY))

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, result, &jpeg.Options{Quality: p.config.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	p.logger.Debug("Image fitted", zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

// fitSize scales w x h up or down to the largest size fitting in maxW x maxH
func fitSize(w, h, maxW, maxH int) (int, int) {
	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	fw := max(1, int(math.Round(float64(w)*scale)))
	fh := max(1, int(math.Round(float64(h)*scale)))
	return min(fw, maxW), min(fh, maxH)
}
