package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/eaglebank/usermanager/internal/service"
)

type ErrorResponse struct {
	Error string `json:"error"`
	// Fields names the missing inputs of a 400 response.
	Fields []string `json:"fields,omitempty"`
}

func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, ErrorResponse{Error: message})
}

// RespondWithServiceError renders a UserService failure with the status code
// for its kind. The error is attached to the gin context for the request
// logger.
func RespondWithServiceError(c *gin.Context, err error) {
	_ = c.Error(err)
	var svcErr *service.Error
	if errors.As(err, &svcErr) && svcErr.Kind == service.KindInvalidInput && len(svcErr.Fields) > 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: service.MessageOf(err), Fields: svcErr.Fields})
		return
	}
	RespondWithError(c, StatusFor(err), service.MessageOf(err))
}

// StatusFor maps a service error kind onto an HTTP status code.
func StatusFor(err error) int {
	switch service.KindOf(err) {
	case service.KindInvalidInput:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
