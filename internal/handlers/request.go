package handlers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/rmitchellscott/graydither/internal/database"
	"github.com/rmitchellscott/graydither/internal/imageprocessing"
	"github.com/rmitchellscott/graydither/internal/utils"
)

const maxTargetDimension = 10000

// ditherRequest holds the parameters shared by the synchronous and job endpoints.
// Values come from the query string, a form or a JSON body.
type ditherRequest struct {
	URL    string `form:"url" json:"url" binding:"omitempty,url"`
	Bits   *int   `form:"bits" json:"bits" binding:"omitempty,min=1,max=8"`
	Width  int    `form:"width" json:"width" binding:"min=0,max=10000"`
	Height int    `form:"height" json:"height" binding:"min=0,max=10000"`
	Resize string `form:"resize" json:"resize" binding:"omitempty,oneof=none fit fill"`
	Format string `form:"format" json:"format" binding:"omitempty,oneof=png bmp"`
}

// requestError carries the HTTP status for a failure in request handling
type requestError struct {
	status  int
	message string
	err     error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *requestError) Unwrap() error { return e.err }

func badRequest(message string, err error) *requestError {
	return &requestError{status: http.StatusBadRequest, message: message, err: err}
}

// abortWithError writes a requestError, or a 500 for anything else
func abortWithError(c *gin.Context, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		c.JSON(reqErr.status, gin.H{"error": reqErr.message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// validationErrorMessage returns a user-friendly validation error message.
func validationErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, ve := range verrs {
			switch ve.Field() {
			case "Bits":
				return fmt.Sprintf("bits must be between %d and %d", imageprocessing.MinBitDepth, imageprocessing.MaxBitDepth)
			case "Width", "Height":
				return fmt.Sprintf("width and height must be between 0 and %d", maxTargetDimension)
			case "Resize":
				return "resize must be one of none, fit, fill"
			case "Format":
				return "format must be one of png, bmp"
			case "URL":
				return "url must be a valid http or https URL"
			}
		}
	}
	return "Invalid request parameters"
}

// bindOptions binds and validates the request parameters into processing options
func (h *Handler) bindOptions(c *gin.Context) (*ditherRequest, imageprocessing.ProcessingOptions, error) {
	var req ditherRequest
	if err := bindRequest(c, &req); err != nil {
		return nil, imageprocessing.ProcessingOptions{}, badRequest(validationErrorMessage(err), err)
	}

	var err error
	options := imageprocessing.DefaultProcessingOptions()
	options.BitDepth = h.settings.DefaultBitDepth
	if req.Bits != nil {
		options.BitDepth = *req.Bits
	}
	options.Width = req.Width
	options.Height = req.Height

	// Bare dimensions mean fit
	if req.Resize == "" && (req.Width > 0 || req.Height > 0) {
		req.Resize = string(imageprocessing.ResizeFit)
	}
	if options.Resize, err = imageprocessing.ParseResizeMode(req.Resize); err != nil {
		return nil, options, badRequest(err.Error(), err)
	}
	if options.Format, err = imageprocessing.ParseOutputFormat(req.Format); err != nil {
		return nil, options, badRequest(err.Error(), err)
	}
	if err := options.Validate(); err != nil {
		return nil, options, badRequest(err.Error(), err)
	}

	return &req, options, nil
}

// bindRequest binds the query string, then lets body fields override it.
// Multipart binding alone never looks at the query.
func bindRequest(c *gin.Context, req *ditherRequest) error {
	if err := c.ShouldBindQuery(req); err != nil {
		return err
	}

	switch c.ContentType() {
	case binding.MIMEJSON:
		return c.ShouldBindJSON(req)
	case binding.MIMEMultipartPOSTForm:
		return c.ShouldBindWith(req, binding.FormMultipart)
	case binding.MIMEPOSTForm:
		return c.ShouldBindWith(req, binding.Form)
	default:
		return nil
	}
}

// sourceImage is the raw input of a request
type sourceImage struct {
	data       []byte
	sourceType string
	sourceURL  string
	config     image.Config
	format     string
}

// loadSource reads the uploaded file or fetches the remote URL and checks the bytes
// are a decodable image.
func (h *Handler) loadSource(ctx context.Context, c *gin.Context, req *ditherRequest) (*sourceImage, error) {
	src := &sourceImage{}
	maxBytes := h.settings.MaxUploadBytes()

	if fileHeader, err := c.FormFile("file"); err == nil {
		if fileHeader.Size > maxBytes {
			return nil, &requestError{status: http.StatusRequestEntityTooLarge, message: fmt.Sprintf("file exceeds %dMB", h.settings.MaxUploadMB)}
		}
		f, err := fileHeader.Open()
		if err != nil {
			return nil, badRequest("failed to read uploaded file", err)
		}
		defer f.Close()

		if src.data, err = io.ReadAll(io.LimitReader(f, maxBytes)); err != nil {
			return nil, badRequest("failed to read uploaded file", err)
		}
		src.sourceType = database.SourceUpload
	} else if req.URL != "" {
		if err := h.policy.Validate(ctx, req.URL); err != nil {
			return nil, badRequest(err.Error(), err)
		}
		data, err := imageprocessing.FetchImage(ctx, h.fetcher, req.URL, h.settings.FetchTimeout, maxBytes)
		if errors.Is(err, utils.ErrURLNotAllowed) {
			return nil, badRequest(err.Error(), err)
		}
		if err != nil {
			return nil, &requestError{status: http.StatusBadGateway, message: err.Error(), err: err}
		}
		src.data = data
		src.sourceType = database.SourceURL
		src.sourceURL = req.URL
	} else {
		return nil, badRequest("either a file upload or a url is required", nil)
	}

	cfg, format, err := imageprocessing.DecodeConfig(src.data, int64(h.settings.MaxSourcePixels))
	if errors.Is(err, imageprocessing.ErrImageTooLarge) {
		return nil, &requestError{status: http.StatusRequestEntityTooLarge, message: err.Error(), err: err}
	}
	if err != nil {
		return nil, badRequest("unsupported or corrupt image", err)
	}
	src.config = cfg
	src.format = format
	return src, nil
}

// setImageHeaders describes a dithered image in response headers
func setImageHeaders(c *gin.Context, bits, width, height int) {
	c.Header("X-Bit-Depth", fmt.Sprint(bits))
	c.Header("X-Image-Width", fmt.Sprint(width))
	c.Header("X-Image-Height", fmt.Sprint(height))
}
