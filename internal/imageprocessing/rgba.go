package imageprocessing

import (
	"errors"
	"fmt"
	"math"
)

// ErrShapeMismatch is returned when a pixel buffer does not hold exactly Width*Height RGBA pixels
var ErrShapeMismatch = errors.New("pixel buffer shape mismatch")

// RGBAImage is a raw row-major pixel buffer with 4 non-premultiplied 8-bit channels per pixel
// and no padding between rows.
type RGBAImage struct {
	Width  int
	Height int
	Pix    []byte
}

// NewRGBAImage allocates a zeroed buffer for a width x height image
func NewRGBAImage(width, height int) *RGBAImage {
	return &RGBAImage{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}
}

// Validate checks the buffer length against the image dimensions
func (m *RGBAImage) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: image is nil", ErrShapeMismatch)
	}
	if m.Width < 0 || m.Height < 0 {
		return fmt.Errorf("%w: negative dimensions %dx%d", ErrShapeMismatch, m.Width, m.Height)
	}
	if m.Width > 0 && m.Height > math.MaxInt/4/m.Width {
		return fmt.Errorf("%w: dimensions %dx%d are too large", ErrShapeMismatch, m.Width, m.Height)
	}
	if expected := m.Width * m.Height * 4; len(m.Pix) != expected {
		return fmt.Errorf("%w: expected %d bytes for %dx%d RGBA, got %d", ErrShapeMismatch, expected, m.Width, m.Height, len(m.Pix))
	}
	return nil
}

// Empty reports whether the image has no pixels
func (m *RGBAImage) Empty() bool {
	return m.Width == 0 || m.Height == 0
}
