package imageprocessing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"net/http"
	"time"

	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// DefaultMaxPixels bounds the source images the service will decode. Dithering keeps
// several buffers of this many pixels alive at once.
const DefaultMaxPixels = 40_000_000

// ErrImageTooLarge is returned for images whose header declares more pixels than allowed
var ErrImageTooLarge = errors.New("image too large")

// CheckDimensions rejects images above maxPixels without multiplying past int64.
// A maxPixels of zero or less disables the check.
func CheckDimensions(width, height int, maxPixels int64) error {
	if maxPixels <= 0 {
		return nil
	}
	if width > 0 && height > 0 && int64(height) > maxPixels/int64(width) {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, width, height, maxPixels)
	}
	return nil
}

// DecodeConfig reads only the image header and enforces the pixel limit
func DecodeConfig(data []byte, maxPixels int64) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("failed to decode image header: %w", err)
	}
	if err := CheckDimensions(cfg.Width, cfg.Height, maxPixels); err != nil {
		return image.Config{}, "", err
	}
	return cfg, format, nil
}

// DecodeLimited checks the header against maxPixels before decoding the full image
func DecodeLimited(data []byte, maxPixels int64) (image.Image, string, error) {
	if _, _, err := DecodeConfig(data, maxPixels); err != nil {
		return nil, "", err
	}
	return Decode(bytes.NewReader(data))
}

// Decode decodes any registered image format
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// FetchImage downloads up to maxBytes of an image body. A larger body is an error.
// client decides which redirects and connections are allowed; nil uses a plain client.
func FetchImage(ctx context.Context, client *http.Client, url string, timeout time.Duration, maxBytes int64) ([]byte, error) {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxBytes)
	}

	return data, nil
}
