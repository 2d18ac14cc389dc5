package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/bmp"

	"github.com/rmitchellscott/graydither/internal/imageprocessing"
)

func writeGradient(t *testing.T, path string, width, height int) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(x * 255 / (width - 1))
			img.Set(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func execute(t *testing.T, stdin []byte, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(bytes.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func assertGrayLevels(t *testing.T, img image.Image, bits int) {
	t.Helper()

	palette := imageprocessing.GrayscalePalette(bits)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if palette[palette.Index(g)] != g {
				t.Fatalf("(%d,%d): gray %d is not a %d-bit level", x, y, g.Y, bits)
			}
		}
	}
}

func TestDitherCommand_File(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.png")
	writeGradient(t, input, 32, 16)

	tests := []struct {
		name   string
		output string
		args   []string
		width  int
		height int
		bits   int
	}{
		{"defaults", "out.png", nil, 32, 16, 1},
		{"two bits", "two.png", []string{"--bits", "2"}, 32, 16, 2},
		{"bare size fits", "fit.png", []string{"--width", "16", "--height", "16"}, 16, 16, 1},
		{"bmp by extension", "out.bmp", []string{"-b", "3"}, 32, 16, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := filepath.Join(dir, tt.output)
			args := append([]string{"dither", "-i", input, "-o", output}, tt.args...)
			_, stderr, err := execute(t, nil, args...)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if !strings.Contains(stderr, "Wrote "+output) {
				t.Errorf("expected summary on stderr, got %q", stderr)
			}

			f, err := os.Open(output)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()

			var img image.Image
			if strings.HasSuffix(output, ".bmp") {
				img, err = bmp.Decode(f)
			} else {
				img, err = png.Decode(f)
			}
			if err != nil {
				t.Fatalf("decode output: %v", err)
			}
			if b := img.Bounds(); b.Dx() != tt.width || b.Dy() != tt.height {
				t.Errorf("expected %dx%d, got %dx%d", tt.width, tt.height, b.Dx(), b.Dy())
			}
			assertGrayLevels(t, img, tt.bits)
		})
	}
}

func TestDitherCommand_StdinToStdout(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.png")
	writeGradient(t, input, 8, 4)
	data, err := os.ReadFile(input)
	if err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, data, "dither", "-i", "-", "-o", "-", "--bits", "4")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	img, err := png.Decode(strings.NewReader(stdout))
	if err != nil {
		t.Fatalf("stdout is not a PNG: %v", err)
	}
	assertGrayLevels(t, img, 4)
}

func TestDitherCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.png")
	writeGradient(t, input, 4, 4)

	tests := []struct {
		name string
		args []string
	}{
		{"missing input flag", []string{"dither", "-o", filepath.Join(dir, "x.png")}},
		{"bits too high", []string{"dither", "-i", input, "-o", filepath.Join(dir, "x.png"), "--bits", "9"}},
		{"bits zero", []string{"dither", "-i", input, "-o", filepath.Join(dir, "x.png"), "--bits", "0"}},
		{"unknown extension", []string{"dither", "-i", input, "-o", filepath.Join(dir, "x.gif")}},
		{"bad resize", []string{"dither", "-i", input, "-o", filepath.Join(dir, "x.png"), "--resize", "stretch"}},
		{"missing file", []string{"dither", "-i", filepath.Join(dir, "nope.png"), "-o", filepath.Join(dir, "x.png")}},
		{"above pixel limit", []string{"dither", "-i", input, "-o", filepath.Join(dir, "x.png"), "--max-pixels", "15"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := execute(t, nil, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, nil, "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stdout) == "" {
		t.Error("expected version output")
	}
}
