// Package thumbnail decodes raster uploads and renders bounded JPEG
// derivatives.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	// registered decoders
	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 256
	DefaultQuality      = 85
	DefaultLabelQuality = 90

	// MaxPixels bounds width*height of an accepted image. Headers are
	// checked against it before any pixel buffer is allocated.
	MaxPixels = 40_000_000
)

// ErrDecode marks input that is not a supported, well-formed image.
var ErrDecode = errors.New("unsupported or malformed image")

type Options struct {
	MaxDimension int
	Quality      int
	LabelQuality int
}

func (o Options) withDefaults() Options {
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	if o.LabelQuality <= 0 || o.LabelQuality > 100 {
		o.LabelQuality = DefaultLabelQuality
	}
	return o
}

// Result holds both encodings of the scaled image.
type Result struct {
	Thumbnail  []byte
	LabelInput []byte
	Width      int
	Height     int
	Source     image.Point
	Format     string
}

// Decode parses data and converts it to RGBA so later encodes never depend on
// the source color model.
func Decode(data []byte) (*image.RGBA, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", ErrDecode)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: empty bounds", ErrDecode)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, MaxPixels)
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, "", fmt.Errorf("%w: empty bounds", ErrDecode)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)
	return rgba, format, nil
}

// FitWithin scales (w, h) so the longer side is at most limit, preserving
// the aspect ratio with round-to-nearest. Smaller images keep their size.
func FitWithin(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, scaleSide(h, limit, w)
	}
	return scaleSide(w, limit, h), limit
}

func scaleSide(side, limit, longer int) int {
	scaled := (2*side*limit + longer) / (2 * longer)
	if scaled < 1 {
		return 1
	}
	return scaled
}

// Render decodes data, scales it and encodes the derivative and the
// label-detection input from the same converted pixels.
func Render(data []byte, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	rgba, format, err := Decode(data)
	if err != nil {
		return nil, err
	}

	srcW, srcH := rgba.Bounds().Dx(), rgba.Bounds().Dy()
	w, h := FitWithin(srcW, srcH, opts.MaxDimension)

	scaled := rgba
	if w != srcW || h != srcH {
		scaled = image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), rgba, rgba.Bounds(), xdraw.Src, nil)
	}

	thumb, err := encodeJPEG(scaled, opts.Quality)
	if err != nil {
		return nil, err
	}
	labelInput, err := encodeJPEG(scaled, opts.LabelQuality)
	if err != nil {
		return nil, err
	}

	return &Result{
		Thumbnail:  thumb,
		LabelInput: labelInput,
		Width:      w,
		Height:     h,
		Source:     image.Pt(srcW, srcH),
		Format:     format,
	}, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
