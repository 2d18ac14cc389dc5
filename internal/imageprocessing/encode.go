package imageprocessing

import (
	"fmt"
	"image"
	"io"
	"strings"

	"golang.org/x/image/bmp"
)

// OutputFormat is the container a dithered image is encoded into
type OutputFormat string

const (
	FormatPNG OutputFormat = "png"
	FormatBMP OutputFormat = "bmp"
)

// ParseOutputFormat parses a case-insensitive format name. An empty name means PNG.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, nil
	case "bmp":
		return FormatBMP, nil
	default:
		return "", fmt.Errorf("unsupported output format: %q", s)
	}
}

// ContentType returns the MIME type for the format
func (f OutputFormat) ContentType() string {
	if f == FormatBMP {
		return "image/bmp"
	}
	return "image/png"
}

// Extension returns the file extension for the format, without the dot
func (f OutputFormat) Extension() string {
	if f == FormatBMP {
		return "bmp"
	}
	return "png"
}

// Encode writes a dithered image in the requested format. PNG output keeps the native
// grayscale bit depth; BMP output is 8-bit paletted.
func Encode(w io.Writer, img *image.Paletted, bits int, format OutputFormat) error {
	switch format {
	case FormatPNG, "":
		data, err := EncodeGrayscalePNG(img, bits)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case FormatBMP:
		if img == nil {
			return fmt.Errorf("image is nil")
		}
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("unsupported output format: %q", format)
	}
}
