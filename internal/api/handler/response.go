package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/imgprompt/internal/domain"
)

// ErrorResponse is the failure envelope shared by every endpoint.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// RespondError aborts the request with the failure envelope.
func RespondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Success: false, Error: message})
}

// respondPipelineError maps a classified error to its status. Unclassified
// errors are reported without detail.
func respondPipelineError(c *gin.Context, err error) {
	status := domain.StatusCode(err)
	message := err.Error()
	if domain.Kind(err) == "internal" {
		message = "internal server error"
	}
	RespondError(c, status, message)
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
