package imageprocessing

import (
	"bytes"
	"image/color"
	"testing"

	"golang.org/x/image/bmp"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected OutputFormat
		wantErr  bool
	}{
		{"", FormatPNG, false},
		{"png", FormatPNG, false},
		{" PNG ", FormatPNG, false},
		{"bmp", FormatBMP, false},
		{"jpeg", "", true},
	}

	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q): error %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.expected {
			t.Errorf("ParseOutputFormat(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}

	if FormatBMP.ContentType() != "image/bmp" || FormatPNG.ContentType() != "image/png" {
		t.Error("unexpected content types")
	}
}

func TestEncode_BMP(t *testing.T) {
	src := palettedStripe(9, 1)

	var buf bytes.Buffer
	if err := Encode(&buf, src, 1, FormatBMP); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := bmp.Decode(&buf)
	if err != nil {
		t.Fatalf("bmp.Decode: %v", err)
	}
	if decoded.Bounds() != src.Bounds() {
		t.Fatalf("bounds %v, expected %v", decoded.Bounds(), src.Bounds())
	}
	for x := 0; x < 9; x++ {
		want := src.At(x, 0).(color.Gray).Y
		got := color.GrayModel.Convert(decoded.At(x, 0)).(color.Gray).Y
		if got != want {
			t.Errorf("x=%d: expected %d, got %d", x, want, got)
		}
	}
}

func TestEncode_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, palettedStripe(2, 1), 1, OutputFormat("gif")); err == nil {
		t.Error("expected error for unknown format")
	}
}
