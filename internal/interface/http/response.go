package http

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/skillforge/lms-backend/internal/domain/shared"
	"github.com/skillforge/lms-backend/internal/interface/http/handlers"
	"github.com/skillforge/lms-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success bool          `json:"success"`
	Data    interface{}   `json:"data,omitempty"`
	Error   *APIError     `json:"error,omitempty"`
	Meta    *ResponseMeta `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId,omitempty"`
	FromCache bool      `json:"fromCache,omitempty"`
}

func newMeta(c *gin.Context) *ResponseMeta {
	return &ResponseMeta{Timestamp: time.Now().UTC(), RequestID: handlers.RequestIDFrom(c)}
}

// writeJSON writes a successful response.
func writeJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, JSONResponse{Success: true, Data: data, Meta: newMeta(c)})
}

// writeJSONWithMeta writes a successful response with custom metadata.
func writeJSONWithMeta(c *gin.Context, status int, data interface{}, meta *ResponseMeta) {
	if meta == nil {
		meta = newMeta(c)
	}
	meta.Timestamp = time.Now().UTC()
	c.JSON(status, JSONResponse{Success: true, Data: data, Meta: meta})
}

// writeError aborts the request with an error response.
func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, JSONResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    newMeta(c),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// kindStatus maps an error class onto an HTTP status.
var kindStatus = map[shared.Kind]int{
	shared.KindNotFound:      http.StatusNotFound,
	shared.KindForbidden:     http.StatusForbidden,
	shared.KindUnauthorized:  http.StatusUnauthorized,
	shared.KindInvalid:       http.StatusBadRequest,
	shared.KindAlreadyExists: http.StatusConflict,
	shared.KindConflict:      http.StatusConflict,
	shared.KindUnavailable:   http.StatusServiceUnavailable,
}

// statusFor maps a domain error onto an HTTP status and error code.
func statusFor(err error) (int, string) {
	kind := shared.KindOf(err)
	if status, ok := kindStatus[kind]; ok {
		return status, kind.String()
	}
	return http.StatusInternalServerError, shared.KindInternal.String()
}

// writeDomainError logs and renders an application error.
func (s *Server) writeDomainError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			logger.Err(err),
			logger.String("path", c.FullPath()),
			logger.String("request_id", handlers.RequestIDFrom(c)),
		)
		writeError(c, status, code, "an unexpected error occurred")
		return
	}
	writeError(c, status, code, shared.PublicMessage(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BINDING
// ══════════════════════════════════════════════════════════════════════════════

var registerOnce sync.Once

// registerValidatorTags makes validation errors report JSON field names.
func registerValidatorTags() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// bindJSON decodes and validates the body, writing a 400 on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, "validation_error", bindingMessage(err))
		return false
	}
	return true
}

func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "malformed request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "min", "max":
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
