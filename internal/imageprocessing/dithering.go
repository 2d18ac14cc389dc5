package imageprocessing

// Floyd-Steinberg weights, in sixteenths
const (
	weightRight     = 7.0 / 16
	weightDownLeft  = 3.0 / 16
	weightDown      = 5.0 / 16
	weightDownRight = 1.0 / 16
)

// Dither applies Floyd-Steinberg dithering at DefaultBitDepth (pure black and white)
func Dither(src *RGBAImage) (*RGBAImage, error) {
	return DitherFloydSteinberg(src, DefaultBitDepth)
}

// DitherFloydSteinberg converts src to a grayscale image restricted to 2^bits evenly spaced
// levels, diffusing each pixel's quantization error onto its unvisited neighbours.
//
// The result is a new image of the same size where R=G=B is the dithered level and A=255.
// src is not modified. Invalid parameters are rejected before any pixel is touched.
func DitherFloydSteinberg(src *RGBAImage, bits int) (*RGBAImage, error) {
	if err := ValidateBitDepth(bits); err != nil {
		return nil, err
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}

	width, height := src.Width, src.Height
	dst := NewRGBAImage(width, height)
	if dst.Empty() {
		return dst, nil
	}

	levels := lumaBuffer(src)
	diffuse(levels, width, height, levelScale(bits))

	for i, v := range levels {
		gray := uint8(v)
		o := i * 4
		dst.Pix[o] = gray
		dst.Pix[o+1] = gray
		dst.Pix[o+2] = gray
		dst.Pix[o+3] = 255
	}

	return dst, nil
}

// lumaBuffer returns one luma sample per pixel, indexed y*width+x
func lumaBuffer(src *RGBAImage) []float64 {
	buf := make([]float64, src.Width*src.Height)
	for i := range buf {
		p := src.Pix[i*4 : i*4+4 : i*4+4]
		buf[i] = Luma(p[0], p[1], p[2], p[3])
	}
	return buf
}

// diffuse runs the raster pass in place. On return every sample holds its quantized level.
// Error accumulates in float64 and is never truncated between steps.
func diffuse(buf []float64, width, height int, scale float64) {
	for y := 0; y < height; y++ {
		row := y * width
		hasNext := y+1 < height
		for x := 0; x < width; x++ {
			i := row + x
			oldValue := buf[i]
			newValue := quantize(oldValue, scale)
			buf[i] = newValue

			quantError := oldValue - newValue
			if quantError == 0 {
				continue
			}

			if x+1 < width {
				buf[i+1] += quantError * weightRight
			}
			if !hasNext {
				continue
			}
			below := i + width
			if x > 0 {
				buf[below-1] += quantError * weightDownLeft
			}
			buf[below] += quantError * weightDown
			if x+1 < width {
				buf[below+1] += quantError * weightDownRight
			}
		}
	}
}
