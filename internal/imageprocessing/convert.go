package imageprocessing

import (
	"image"
	"image/draw"
)

// FromImage copies any image into a raw RGBA buffer anchored at the origin.
// Channels are non-premultiplied, matching what Luma expects.
func FromImage(img image.Image) *RGBAImage {
	if img == nil {
		return nil
	}

	bounds := img.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)

	return &RGBAImage{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pix:    nrgba.Pix,
	}
}

// NRGBA wraps a copy of the buffer as a standard library image
func (m *RGBAImage) NRGBA() *image.NRGBA {
	pix := make([]byte, len(m.Pix))
	copy(pix, m.Pix)
	return &image.NRGBA{
		Pix:    pix,
		Stride: m.Width * 4,
		Rect:   image.Rect(0, 0, m.Width, m.Height),
	}
}

// Paletted maps a dithered image onto GrayscalePalette(bits). Only the red channel is read,
// so m must already hold quantized gray levels for the same bit depth.
func (m *RGBAImage) Paletted(bits int) (*image.Paletted, error) {
	if err := ValidateBitDepth(bits); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	paletted := image.NewPaletted(image.Rect(0, 0, m.Width, m.Height), GrayscalePalette(bits))
	for i := range paletted.Pix {
		paletted.Pix[i] = LevelIndex(m.Pix[i*4], bits)
	}

	return paletted, nil
}
