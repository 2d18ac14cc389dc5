package imageprocessing

// BT.601 luma weights
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// Luma returns the perceived brightness of a non-premultiplied RGBA pixel in [0,255].
// The weighted RGB sum is scaled by normalized alpha, so a fully transparent pixel is black.
func Luma(r, g, b, a uint8) float64 {
	return (lumaR*float64(r) + lumaG*float64(g) + lumaB*float64(b)) * float64(a) / 255
}
