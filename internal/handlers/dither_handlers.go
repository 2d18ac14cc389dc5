package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rmitchellscott/graydither/internal/imageprocessing"
	"github.com/rmitchellscott/graydither/internal/logging"
)

// DitherHandler dithers the uploaded or fetched image and responds with the encoded result
func (h *Handler) DitherHandler(c *gin.Context) {
	req, options, err := h.bindOptions(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	src, err := h.loadSource(c.Request.Context(), c, req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	img, _, err := imageprocessing.Decode(bytes.NewReader(src.data))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported or corrupt image"})
		return
	}

	start := time.Now()
	result, err := imageprocessing.Render(img, options)
	if err != nil {
		if errors.Is(err, imageprocessing.ErrInvalidBitDepth) || errors.Is(err, imageprocessing.ErrShapeMismatch) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logging.ErrorWithComponent(logging.ComponentDither, "Failed to dither image", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to dither image"})
		return
	}

	logging.InfoWithComponent(logging.ComponentDither, "Dithered image",
		"source", src.sourceType,
		"src_format", src.format,
		"bits", result.BitDepth,
		"width", result.Width,
		"height", result.Height,
		"duration_ms", time.Since(start).Milliseconds())

	setImageHeaders(c, result.BitDepth, result.Width, result.Height)
	c.Data(http.StatusOK, result.Format.ContentType(), result.Data)
}
