package imageprocessing

import (
	"math"
	"testing"
)

func TestLuma(t *testing.T) {
	tests := []struct {
		name       string
		r, g, b, a uint8
		expected   float64
	}{
		{"opaque white", 255, 255, 255, 255, 255},
		{"opaque black", 0, 0, 0, 255, 0},
		{"transparent white", 255, 255, 255, 0, 0},
		{"pure red", 255, 0, 0, 255, 0.299 * 255},
		{"pure green", 0, 255, 0, 255, 0.587 * 255},
		{"pure blue", 0, 0, 255, 255, 0.114 * 255},
		{"half transparent gray", 200, 200, 200, 51, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Luma(tt.r, tt.g, tt.b, tt.a)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Luma(%d,%d,%d,%d) = %v, expected %v", tt.r, tt.g, tt.b, tt.a, got, tt.expected)
			}
		})
	}
}
