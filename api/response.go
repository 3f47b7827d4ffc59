package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/export"
)

// RequestIDKey is the context key and header carrying the request ID.
const RequestIDKey = "X-Request-ID"

// Error codes.
const (
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeAlreadySettled = "ALREADY_SETTLED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// Response is the envelope every JSON endpoint returns.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader(RequestIDKey)
}

func (h *Handler) success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func (h *Handler) created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func (h *Handler) errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{Error: &ErrorInfo{
		Code:      code,
		Message:   message,
		RequestID: getRequestID(c),
	}})
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	h.errorResponse(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// handleError maps engine errors to HTTP responses. Anything the engine
// does not classify is logged and reported as an internal error.
func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dues.ErrUnauthorized):
		h.errorResponse(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case dues.IsValidation(err):
		h.errorResponse(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, export.ErrEmptyFile),
		errors.Is(err, export.ErrMissingHeader),
		errors.Is(err, export.ErrMissingColumn):
		h.errorResponse(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case dues.IsNotFound(err):
		h.errorResponse(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, dues.ErrAlreadySettled):
		h.errorResponse(c, http.StatusConflict, ErrCodeAlreadySettled, err.Error())
	case dues.IsDuplicate(err):
		h.errorResponse(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		h.engine.Logger().Error("dues: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", getRequestID(c),
			"error", err,
		)
		h.errorResponse(c, http.StatusInternalServerError, ErrCodeInternal, "An unexpected error occurred")
	}
}
