package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmitchellscott/graydither/internal/imageprocessing"
	"github.com/rmitchellscott/graydither/internal/logging"
)

const (
	fetchTimeout  = 15 * time.Second
	maxFetchBytes = 20 << 20
)

func newDitherCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dither",
		Short: "Dither an image file, URL or stdin",
		Args:  cobra.NoArgs,
		RunE:  runDither,
	}

	cmd.Flags().StringP("input", "i", "", "Input image path, http(s) URL, or - for stdin")
	cmd.Flags().StringP("output", "o", "", "Output path, or - for stdout")
	cmd.Flags().IntP("bits", "b", imageprocessing.DefaultBitDepth, "Bits per pixel (1-8)")
	cmd.Flags().Int("width", 0, "Target width")
	cmd.Flags().Int("height", 0, "Target height")
	cmd.Flags().String("resize", "", "Resize mode (none, fit, fill); defaults to fit when a size is given")
	cmd.Flags().String("format", "", "Output format (png, bmp); inferred from the output extension")
	cmd.Flags().Int64("max-pixels", imageprocessing.DefaultMaxPixels, "Largest source image to decode, in pixels")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
	return cmd
}

func runDither(cmd *cobra.Command, args []string) error {
	inputPath, _ := cmd.Flags().GetString("input")
	outputPath, _ := cmd.Flags().GetString("output")
	bits, _ := cmd.Flags().GetInt("bits")
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	resizeStr, _ := cmd.Flags().GetString("resize")
	formatStr, _ := cmd.Flags().GetString("format")
	maxPixels, _ := cmd.Flags().GetInt64("max-pixels")

	options, err := cliOptions(bits, width, height, resizeStr, formatStr, outputPath)
	if err != nil {
		return err
	}

	data, err := readInput(cmd.Context(), cmd.InOrStdin(), inputPath)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	img, decodedFormat, err := imageprocessing.DecodeLimited(data, maxPixels)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := imageprocessing.Render(img, options)
	if err != nil {
		return fmt.Errorf("dithering: %w", err)
	}
	logging.DebugWithComponent(logging.ComponentDither, "Dithered image",
		"source_format", decodedFormat,
		"bits", result.BitDepth,
		"width", result.Width,
		"height", result.Height,
		"duration", time.Since(start))

	if outputPath == "-" {
		_, err = cmd.OutOrStdout().Write(result.Data)
		return err
	}
	if err := os.WriteFile(outputPath, result.Data, 0644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%dx%d, %d-bit %s)\n",
		outputPath, result.Width, result.Height, result.BitDepth, result.Format)
	return nil
}

// cliOptions builds processing options from flags. A bare size means fit, and the format
// follows the output file extension unless given explicitly.
func cliOptions(bits, width, height int, resizeStr, formatStr, outputPath string) (imageprocessing.ProcessingOptions, error) {
	options := imageprocessing.DefaultProcessingOptions()
	options.BitDepth = bits
	options.Width = width
	options.Height = height

	resize, err := imageprocessing.ParseResizeMode(resizeStr)
	if err != nil {
		return options, err
	}
	if resizeStr == "" && (width > 0 || height > 0) {
		resize = imageprocessing.ResizeFit
	}
	options.Resize = resize

	if formatStr == "" && outputPath != "-" {
		formatStr = strings.TrimPrefix(strings.ToLower(filepath.Ext(outputPath)), ".")
	}
	format, err := imageprocessing.ParseOutputFormat(formatStr)
	if err != nil {
		return options, err
	}
	options.Format = format

	return options, options.Validate()
}

func readInput(ctx context.Context, stdin io.Reader, path string) ([]byte, error) {
	switch {
	case path == "-":
		return io.ReadAll(io.LimitReader(stdin, maxFetchBytes))
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		if ctx == nil {
			ctx = context.Background()
		}
		return imageprocessing.FetchImage(ctx, nil, path, fetchTimeout, maxFetchBytes)
	default:
		return os.ReadFile(path)
	}
}
