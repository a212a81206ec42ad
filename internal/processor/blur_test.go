package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/genricoloni/screend/internal/domain"
	"go.uber.org/zap"
)

func TestBlurProcessor_Fit(t *testing.T) {
	tests := []struct {
		name          string
		imageData     []byte
		size          domain.ScreenResolution
		expectedError string
	}{
		{
			name:      "Success - Square Into Full HD",
			imageData: createTestJPEG(100, 100, color.RGBA{R: 255, A: 255}),
			size:      domain.ScreenResolution{Width: 1920, Height: 1080},
		},
		{
			name:      "Success - Landscape Into Portrait Zone",
			imageData: createTestJPEG(200, 100, color.RGBA{G: 255, A: 255}),
			size:      domain.ScreenResolution{Width: 480, Height: 1080},
		},
		{
			name:      "Edge Case - Very Small Image",
			imageData: createTestJPEG(1, 1, color.RGBA{R: 128, G: 128, B: 128, A: 255}),
			size:      domain.ScreenResolution{Width: 640, Height: 360},
		},
		{
			name:          "Error - Invalid Image Data",
			imageData:     []byte("not-an-image"),
			size:          domain.ScreenResolution{Width: 1920, Height: 1080},
			expectedError: "failed to decode image",
		},
		{
			name:          "Error - Corrupted JPEG",
			imageData:     []byte{0xFF, 0xD8, 0xFF, 0x00, 0x00},
			size:          domain.ScreenResolution{Width: 1920, Height: 1080},
			expectedError: "failed to decode image",
		},
		{
			name:          "Error - Zero Zone",
			imageData:     createTestJPEG(10, 10, color.White),
			size:          domain.ScreenResolution{Width: 0, Height: 1080},
			expectedError: "invalid target size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := NewBlurProcessor(zap.NewNop())
			result, err := processor.Fit(context.Background(), tt.imageData, tt.size)

			if tt.expectedError != "" {
				if err == nil {
					t.Fatalf("expected error containing '%s', got nil", tt.expectedError)
				}
				if !strings.Contains(err.Error(), tt.expectedError) {
					t.Errorf("expected error '%s' to contain '%s'", err.Error(), tt.expectedError)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			img, _, err := image.Decode(bytes.NewReader(result))
			if err != nil {
				t.Fatalf("result is not a valid image: %v", err)
			}
			bounds := img.Bounds()
			if bounds.Dx() != tt.size.Width || bounds.Dy() != tt.size.Height {
				t.Errorf("expected %dx%d, got %dx%d", tt.size.Width, tt.size.Height, bounds.Dx(), bounds.Dy())
			}
		})
	}
}

func TestBlurProcessor_Fit_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBlurProcessor(zap.NewNop()).Fit(ctx, createTestJPEG(10, 10, color.Black), domain.ScreenResolution{Width: 10, Height: 10})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{100, 100, 1920, 1080, 1080, 1080},
		{200, 100, 480, 1080, 480, 240},
		{4000, 1000, 1000, 1000, 1000, 250},
		{1, 1, 3, 2, 2, 2},
	}
	for _, tt := range tests {
		gotW, gotH := fitSize(tt.w, tt.h, tt.maxW, tt.maxH)
		if gotW != tt.wantW || gotH != tt.wantH {
			t.Errorf("fitSize(%d,%d,%d,%d) = %dx%d, want %dx%d", tt.w, tt.h, tt.maxW, tt.maxH, gotW, gotH, tt.wantW, tt.wantH)
		}
	}
}

// createTestJPEG generates a simple JPEG image for testing
func createTestJPEG(width, height int, col color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, col)
		}
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 80}); err != nil {
		panic("failed to create test JPEG: " + err.Error())
	}
	return buf.Bytes()
}
