package imageprocessing

import (
	"bytes"
	"fmt"
	"image"
	"strings"
)

// ResizeMode controls how an image is scaled before dithering
type ResizeMode string

const (
	ResizeNone ResizeMode = "none"
	ResizeFit  ResizeMode = "fit"
	ResizeFill ResizeMode = "fill"
)

// ParseResizeMode parses a case-insensitive resize mode. An empty mode means no resizing.
func ParseResizeMode(s string) (ResizeMode, error) {
	switch mode := ResizeMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "":
		return ResizeNone, nil
	case ResizeNone, ResizeFit, ResizeFill:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported resize mode: %q", s)
	}
}

// ProcessingOptions allows customization of the image processing pipeline
type ProcessingOptions struct {
	BitDepth int          `json:"bit_depth"`
	Width    int          `json:"width,omitempty"`
	Height   int          `json:"height,omitempty"`
	Resize   ResizeMode   `json:"resize"`
	Format   OutputFormat `json:"format"`
}

// DefaultProcessingOptions returns 1-bit PNG output at the source size
func DefaultProcessingOptions() ProcessingOptions {
	return ProcessingOptions{
		BitDepth: DefaultBitDepth,
		Resize:   ResizeNone,
		Format:   FormatPNG,
	}
}

// Validate rejects options the pipeline cannot honour
func (o ProcessingOptions) Validate() error {
	if err := ValidateBitDepth(o.BitDepth); err != nil {
		return err
	}
	if o.Width < 0 || o.Height < 0 {
		return fmt.Errorf("target dimensions must not be negative: %dx%d", o.Width, o.Height)
	}
	if _, err := ParseResizeMode(string(o.Resize)); err != nil {
		return err
	}
	if _, err := ParseOutputFormat(string(o.Format)); err != nil {
		return err
	}
	return nil
}

// Result holds an encoded dithered image
type Result struct {
	Data      []byte
	Width     int
	Height    int
	SrcWidth  int
	SrcHeight int
	BitDepth  int
	Format    OutputFormat
}

// Process runs the pipeline: optional resize, Floyd-Steinberg dithering, palette mapping
func Process(img image.Image, options ProcessingOptions) (*image.Paletted, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	resized := resize(img, options)

	dithered, err := DitherFloydSteinberg(FromImage(resized), options.BitDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to dither image: %w", err)
	}

	return dithered.Paletted(options.BitDepth)
}

// Render processes img and encodes the result in the requested format
func Render(img image.Image, options ProcessingOptions) (*Result, error) {
	paletted, err := Process(img, options)
	if err != nil {
		return nil, err
	}

	format, _ := ParseOutputFormat(string(options.Format))
	var buf bytes.Buffer
	if err := Encode(&buf, paletted, options.BitDepth, format); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}

	bounds := img.Bounds()
	return &Result{
		Data:      buf.Bytes(),
		Width:     paletted.Rect.Dx(),
		Height:    paletted.Rect.Dy(),
		SrcWidth:  bounds.Dx(),
		SrcHeight: bounds.Dy(),
		BitDepth:  options.BitDepth,
		Format:    format,
	}, nil
}

// resize applies the resize mode. A zero target dimension keeps the source dimension.
func resize(img image.Image, options ProcessingOptions) image.Image {
	mode, _ := ParseResizeMode(string(options.Resize))
	if mode == ResizeNone || (options.Width == 0 && options.Height == 0) {
		return img
	}

	bounds := img.Bounds()
	width, height := options.Width, options.Height
	if width == 0 {
		width = bounds.Dx()
	}
	if height == 0 {
		height = bounds.Dy()
	}

	if mode == ResizeFill {
		return ResizeToFill(img, width, height)
	}
	return ResizeToFit(img, width, height)
}
