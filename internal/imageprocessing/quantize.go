package imageprocessing

import (
	"errors"
	"fmt"
	"image/color"
	"math"
)

const (
	MinBitDepth     = 1
	MaxBitDepth     = 8
	DefaultBitDepth = 1
)

// ErrInvalidBitDepth is returned when a bit depth falls outside [MinBitDepth, MaxBitDepth]
var ErrInvalidBitDepth = errors.New("invalid bit depth")

// ValidateBitDepth rejects bit depths the quantizer cannot represent. Out of range values
// are never clamped.
func ValidateBitDepth(bits int) error {
	if bits < MinBitDepth || bits > MaxBitDepth {
		return fmt.Errorf("%w: %d (must be between %d and %d)", ErrInvalidBitDepth, bits, MinBitDepth, MaxBitDepth)
	}
	return nil
}

// GetColorLevels returns the number of gray levels for a bit depth
func GetColorLevels(bits int) int {
	return 1 << bits
}

// levelScale is the distance between two adjacent output levels.
func levelScale(bits int) float64 {
	return 255 / float64(GetColorLevels(bits)-1)
}

// quantize snaps v to the nearest step and rounds the reconstructed value, so the result
// is always one of exactly 2^bits integers. Diffused error can push v slightly outside
// [0,255]; the result is kept inside it.
func quantize(v, scale float64) float64 {
	q := math.Round(math.Round(v/scale) * scale)
	if q < 0 {
		return 0
	}
	if q > 255 {
		return 255
	}
	return q
}

// QuantizeLuma maps a luma value in [0,255] to the nearest of 2^bits evenly spaced levels.
func QuantizeLuma(v float64, bits int) (float64, error) {
	if err := ValidateBitDepth(bits); err != nil {
		return 0, err
	}
	return quantize(v, levelScale(bits)), nil
}

// LevelIndex returns the palette index of an already quantized gray value
func LevelIndex(v uint8, bits int) uint8 {
	return uint8(math.Round(float64(v) / levelScale(bits)))
}

// GrayscalePalette returns the exact quantizer outputs for a bit depth, darkest first.
// An invalid bit depth yields a nil palette.
func GrayscalePalette(bits int) color.Palette {
	if ValidateBitDepth(bits) != nil {
		return nil
	}

	levels := GetColorLevels(bits)
	scale := levelScale(bits)
	palette := make(color.Palette, levels)
	for i := 0; i < levels; i++ {
		palette[i] = color.Gray{Y: uint8(quantize(float64(i)*scale, scale))}
	}
	return palette
}
