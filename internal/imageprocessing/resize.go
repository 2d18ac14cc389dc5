package imageprocessing

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// ResizeToFit scales img to fit inside the target while preserving aspect ratio.
// Uncovered areas are letterboxed in black.
func ResizeToFit(img image.Image, targetWidth, targetHeight int) image.Image {
	if !resizable(img, targetWidth, targetHeight) {
		return img
	}

	bounds := img.Bounds()
	newWidth, newHeight := GetScaledDimensions(bounds.Dx(), bounds.Dy(), targetWidth, targetHeight)

	canvas := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{color.RGBA{0, 0, 0, 255}}, image.Point{}, draw.Src)

	offsetX := (targetWidth - newWidth) / 2
	offsetY := (targetHeight - newHeight) / 2
	target := image.Rect(offsetX, offsetY, offsetX+newWidth, offsetY+newHeight)
	xdraw.BiLinear.Scale(canvas, target, img, bounds, xdraw.Over, nil)

	return canvas
}

// GetScaledDimensions returns the largest size with the source aspect ratio that fits the target
func GetScaledDimensions(srcWidth, srcHeight, targetWidth, targetHeight int) (int, int) {
	scale := min(float64(targetWidth)/float64(srcWidth), float64(targetHeight)/float64(srcHeight))
	return atLeastOne(float64(srcWidth) * scale), atLeastOne(float64(srcHeight) * scale)
}

// ResizeToFill scales img to cover the whole target, cropping the centered overflow
func ResizeToFill(img image.Image, targetWidth, targetHeight int) image.Image {
	if !resizable(img, targetWidth, targetHeight) {
		return img
	}

	bounds := img.Bounds()
	scale := max(float64(targetWidth)/float64(bounds.Dx()), float64(targetHeight)/float64(bounds.Dy()))
	newWidth := atLeastOne(float64(bounds.Dx()) * scale)
	newHeight := atLeastOne(float64(bounds.Dy()) * scale)

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	xdraw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, xdraw.Src, nil)

	canvas := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	offset := image.Pt((newWidth-targetWidth)/2, (newHeight-targetHeight)/2)
	draw.Draw(canvas, canvas.Bounds(), resized, offset, draw.Src)

	return canvas
}

func resizable(img image.Image, targetWidth, targetHeight int) bool {
	if img == nil || targetWidth <= 0 || targetHeight <= 0 {
		return false
	}
	return !img.Bounds().Empty()
}

func atLeastOne(v float64) int {
	if n := int(v); n > 0 {
		return n
	}
	return 1
}
