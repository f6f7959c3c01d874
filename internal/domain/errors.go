package domain

import (
	"errors"
	"net/http"
)

// Error kinds surfaced by the analysis pipeline. Components wrap one of these
// with context; callers classify with errors.Is.
var (
	ErrBadInput        = errors.New("bad input")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrDownload        = errors.New("image download failed")
	ErrImageProcessing = errors.New("image processing failed")
	ErrGeneration      = errors.New("prompt generation failed")

	// ErrAnalysisNotFound is returned by the archive for unknown IDs.
	ErrAnalysisNotFound = errors.New("analysis not found")
)

// Kind returns a short label for the error class, used as a log field.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBadInput):
		return "bad_input"
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrDownload):
		return "download"
	case errors.Is(err, ErrImageProcessing):
		return "image_processing"
	case errors.Is(err, ErrGeneration):
		return "generation"
	case errors.Is(err, ErrAnalysisNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// StatusCode maps a pipeline error to the HTTP status of the error envelope.
// Client-caused failures are 4xx, everything else is 500.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrBadInput), errors.Is(err, ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, ErrAnalysisNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
