package inference

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"

	"github.com/zynkhq/zynk/internal/config"
)

// ImageOptions bounds what is sent to the model per window.
type ImageOptions struct {
	MaxImages int
	MaxWidth  int
	MaxHeight int
	Quality   int
}

func imageOptionsFrom(cfg config.InferenceConfig) ImageOptions {
	opts := ImageOptions{
		MaxImages: cfg.MaxImages,
		MaxWidth:  cfg.ImageWidth,
		MaxHeight: cfg.ImageHeight,
		Quality:   cfg.JPEGQuality,
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = 4
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 640
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = 480
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = jpeg.DefaultQuality
	}
	return opts
}

// SampleImages picks at most limit images spread evenly across images,
// starting with the first.
func SampleImages(images []image.Image, limit int) []image.Image {
	if limit <= 0 || len(images) <= limit {
		return images
	}
	step := len(images) / limit
	out := make([]image.Image, 0, limit)
	for i := 0; i < len(images) && len(out) < limit; i += step {
		out = append(out, images[i])
	}
	return out
}

// FitDimensions shrinks width x height to fit inside maxWidth x maxHeight,
// preserving aspect ratio. Images are never enlarged.
func FitDimensions(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}
	scale := float64(maxWidth) / float64(width)
	if hs := float64(maxHeight) / float64(height); hs < scale {
		scale = hs
	}
	w, h := int(math.Round(float64(width)*scale)), int(math.Round(float64(height)*scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// CompressImage resizes img to fit the configured box and encodes it as JPEG.
func CompressImage(img image.Image, opts ImageOptions) ([]byte, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	w, h := FitDimensions(b.Dx(), b.Dy(), opts.MaxWidth, opts.MaxHeight)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
