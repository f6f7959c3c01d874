package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/imgprompt/internal/domain"
	"github.com/timmy/imgprompt/internal/service"
)

// Analyzer runs the image-to-prompt pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, input service.AnalyzeInput) (*service.AnalyzeResult, error)
}

// AnalyzeHandler serves the analyze endpoint.
type AnalyzeHandler struct {
	analyzer Analyzer
	maxBytes int64
}

// NewAnalyzeHandler creates a new analyze handler.
// Parameters:
//   - analyzer: pipeline that turns an image into a prompt.
//   - maxBytes: size ceiling for uploaded files.
// Returns:
//   - *AnalyzeHandler: initialized handler.
func NewAnalyzeHandler(analyzer Analyzer, maxBytes int64) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: analyzer, maxBytes: maxBytes}
}

type analyzeRequest struct {
	ImageURL string `json:"image_url"`
}

// AnalyzeResponse is the success envelope.
type AnalyzeResponse struct {
	Success bool   `json:"success"`
	Prompt  string `json:"prompt"`
}

// Analyze handles POST /api/analyze.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	input, err := h.readInput(c)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	result, err := h.analyzer.Analyze(c.Request.Context(), input)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, AnalyzeResponse{Success: true, Prompt: result.Prompt})
}

// readInput accepts a JSON body with image_url, or a form with image_url
// and/or an image_file part. A form carrying both is rejected before the file
// is opened; the remaining exclusivity cases are enforced by the pipeline.
func (h *AnalyzeHandler) readInput(c *gin.Context) (service.AnalyzeInput, error) {
	switch c.ContentType() {
	case gin.MIMEMultipartPOSTForm:
		form, err := c.MultipartForm()
		if err != nil {
			return service.AnalyzeInput{}, bodyError(err)
		}
		input := service.AnalyzeInput{ImageURL: firstValue(form.Value["image_url"])}
		files := form.File["image_file"]
		if input.ImageURL != "" && len(files) > 0 {
			return service.AnalyzeInput{}, fmt.Errorf("%w: provide either image_url or image_file, not both", domain.ErrBadInput)
		}
		if len(files) > 0 {
			upload, err := h.readUpload(files[0])
			if err != nil {
				return service.AnalyzeInput{}, err
			}
			input.Upload = upload
		}
		return input, nil

	case gin.MIMEPOSTForm:
		if err := c.Request.ParseForm(); err != nil {
			return service.AnalyzeInput{}, bodyError(err)
		}
		return service.AnalyzeInput{ImageURL: c.Request.PostForm.Get("image_url")}, nil

	case gin.MIMEJSON, "":
		var req analyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return service.AnalyzeInput{}, nil
			}
			return service.AnalyzeInput{}, bodyError(err)
		}
		return service.AnalyzeInput{ImageURL: req.ImageURL}, nil

	default:
		return service.AnalyzeInput{}, fmt.Errorf("%w: unsupported content type %q", domain.ErrBadInput, c.ContentType())
	}
}

func (h *AnalyzeHandler) readUpload(fh *multipart.FileHeader) (*domain.Upload, error) {
	if fh.Size > h.maxBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrPayloadTooLarge, h.maxBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open uploaded file: %v", domain.ErrBadInput, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read uploaded file: %v", domain.ErrBadInput, err)
	}

	return &domain.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func bodyError(err error) error {
	if isBodyTooLarge(err) {
		return fmt.Errorf("%w: request body too large", domain.ErrPayloadTooLarge)
	}
	return fmt.Errorf("%w: malformed request body: %v", domain.ErrBadInput, err)
}

func firstValue(values []string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
