package imageprocessing

import (
	"errors"
	"image/color"
	"testing"
)

func TestQuantizeLuma(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		bits     int
		expected float64
	}{
		{"black 1-bit", 0, 1, 0},
		{"just below midpoint 1-bit", 127.4, 1, 0},
		{"midpoint rounds up 1-bit", 127.5, 1, 255},
		{"white 1-bit", 255, 1, 255},
		{"low 2-bit", 40, 2, 0},
		{"first step 2-bit", 100, 2, 85},
		{"second step 2-bit", 128, 2, 170},
		{"3-bit reconstructs rounded level", 72, 3, 73},
		{"4-bit step", 30, 4, 34},
		{"8-bit identity", 200, 8, 200},
		{"8-bit rounds fraction down", 200.4, 8, 200},
		{"8-bit rounds half up", 200.5, 8, 201},
		{"negative clamps to black", -200, 1, 0},
		{"overshoot clamps to white", 400, 2, 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuantizeLuma(tt.value, tt.bits)
			if err != nil {
				t.Fatalf("QuantizeLuma: %v", err)
			}
			if got != tt.expected {
				t.Errorf("QuantizeLuma(%v, %d) = %v, expected %v", tt.value, tt.bits, got, tt.expected)
			}
		})
	}
}

func TestQuantizeLuma_RejectsInvalidBitDepth(t *testing.T) {
	for _, bits := range []int{0, 9, -3} {
		if _, err := QuantizeLuma(128, bits); !errors.Is(err, ErrInvalidBitDepth) {
			t.Errorf("bits=%d: expected ErrInvalidBitDepth, got %v", bits, err)
		}
	}
}

func TestQuantizeLuma_ProducesExactlyTwoToTheBitsLevels(t *testing.T) {
	for bits := MinBitDepth; bits <= MaxBitDepth; bits++ {
		seen := make(map[float64]bool)
		for v := 0.0; v <= 255; v += 0.25 {
			q, err := QuantizeLuma(v, bits)
			if err != nil {
				t.Fatalf("bits=%d: %v", bits, err)
			}
			if q != float64(int(q)) {
				t.Fatalf("bits=%d: non-integer level %v", bits, q)
			}
			seen[q] = true
		}
		if len(seen) != GetColorLevels(bits) {
			t.Errorf("bits=%d: expected %d levels, got %d", bits, GetColorLevels(bits), len(seen))
		}
	}
}

func TestGrayscalePalette(t *testing.T) {
	tests := []struct {
		bits     int
		expected []uint8
	}{
		{1, []uint8{0, 255}},
		{2, []uint8{0, 85, 170, 255}},
		{3, []uint8{0, 36, 73, 109, 146, 182, 219, 255}},
	}

	for _, tt := range tests {
		palette := GrayscalePalette(tt.bits)
		if len(palette) != len(tt.expected) {
			t.Fatalf("bits=%d: expected %d entries, got %d", tt.bits, len(tt.expected), len(palette))
		}
		for i, want := range tt.expected {
			if got := palette[i].(color.Gray).Y; got != want {
				t.Errorf("bits=%d entry %d: expected %d, got %d", tt.bits, i, want, got)
			}
		}
	}

	if GrayscalePalette(0) != nil || GrayscalePalette(9) != nil {
		t.Error("expected nil palette for invalid bit depths")
	}
}

func TestLevelIndex_RoundTripsPalette(t *testing.T) {
	for bits := MinBitDepth; bits <= MaxBitDepth; bits++ {
		for i, c := range GrayscalePalette(bits) {
			if got := LevelIndex(c.(color.Gray).Y, bits); int(got) != i {
				t.Errorf("bits=%d: level %d mapped to index %d, expected %d", bits, c.(color.Gray).Y, got, i)
			}
		}
	}
}

func TestValidateBitDepth(t *testing.T) {
	for bits := MinBitDepth; bits <= MaxBitDepth; bits++ {
		if err := ValidateBitDepth(bits); err != nil {
			t.Errorf("bits=%d: unexpected error %v", bits, err)
		}
	}
	if err := ValidateBitDepth(MaxBitDepth + 1); err == nil {
		t.Error("expected error above the maximum")
	}
}
