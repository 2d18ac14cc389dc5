package imageprocessing

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
)

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// EncodeGrayscalePNG encodes a dithered image as a PNG of color type 0 (grayscale).
// Bit depths 1, 2, 4 and 8 are written natively with the palette index as the sample.
// Any other depth falls back to 8-bit samples holding the gray value itself.
func EncodeGrayscalePNG(img *image.Paletted, bits int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("image is nil")
	}
	if err := ValidateBitDepth(bits); err != nil {
		return nil, err
	}
	if len(img.Palette) > GetColorLevels(bits) {
		return nil, fmt.Errorf("palette has %d entries, %d-bit output allows %d", len(img.Palette), bits, GetColorLevels(bits))
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("cannot encode empty %dx%d image as PNG", width, height)
	}
	sampleDepth := pngSampleDepth(bits)

	var buf bytes.Buffer
	buf.Write(pngSignature)

	var ihdr bytes.Buffer
	binary.Write(&ihdr, binary.BigEndian, uint32(width))
	binary.Write(&ihdr, binary.BigEndian, uint32(height))
	ihdr.Write([]byte{
		uint8(sampleDepth),
		0, // color type: grayscale
		0, // compression
		0, // filter
		0, // no interlace
	})
	writeChunk(&buf, "IHDR", ihdr.Bytes())

	compressed, err := zlibCompress(packGrayscaleRows(img, sampleDepth, sampleDepth == bits))
	if err != nil {
		return nil, fmt.Errorf("failed to compress image data: %w", err)
	}
	writeChunk(&buf, "IDAT", compressed)
	writeChunk(&buf, "IEND", nil)

	return buf.Bytes(), nil
}

func pngSampleDepth(bits int) int {
	switch bits {
	case 1, 2, 4, 8:
		return bits
	default:
		return 8
	}
}

// packGrayscaleRows packs each row MSB first behind a filter byte of 0 (None).
// With native set the palette index is the sample, otherwise the palette gray value is.
func packGrayscaleRows(img *image.Paletted, sampleDepth int, native bool) []byte {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	pixelsPerByte := 8 / sampleDepth
	bytesPerRow := (width + pixelsPerByte - 1) / pixelsPerByte
	data := make([]byte, height*(bytesPerRow+1))

	for y := 0; y < height; y++ {
		rowStart := y * (bytesPerRow + 1)
		for x := 0; x < width; x++ {
			sample := img.ColorIndexAt(bounds.Min.X+x, bounds.Min.Y+y)
			if !native {
				sample = color.GrayModel.Convert(img.Palette[sample]).(color.Gray).Y
			}
			byteIndex := rowStart + 1 + x/pixelsPerByte
			shift := (pixelsPerByte - 1 - x%pixelsPerByte) * sampleDepth
			data[byteIndex] |= sample << shift
		}
	}

	return data
}

func writeChunk(buf *bytes.Buffer, chunkType string, data []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.WriteString(chunkType)
	buf.Write(data)

	crc := crc32.NewIEEE()
	crc.Write([]byte(chunkType))
	crc.Write(data)
	binary.Write(buf, binary.BigEndian, crc.Sum32())
}

func zlibCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zlib writer: %w", err)
	}

	return buf.Bytes(), nil
}
