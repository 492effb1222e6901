package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fashion-supplychain/progress-service/pkg/errors"
	"github.com/fashion-supplychain/progress-service/pkg/tracing"
)

// APIErrorResponse is the JSON body of every non-2xx response.
// Undo rejections carry their reason code in Details.
type APIErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	TraceID   string            `json:"traceId,omitempty"`
	Timestamp string            `json:"timestamp"`
	Path      string            `json:"path"`
}

func writeAppError(c *gin.Context, logger *slog.Logger, appErr *errors.AppError, abort bool) {
	if logger != nil {
		logError(logger, c, appErr)
	}
	body := APIErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
		RequestID: c.GetString(ContextKeyRequestID),
		TraceID:   tracing.GetTraceID(c.Request.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
	}
	if abort {
		c.AbortWithStatusJSON(appErr.HTTPStatus, body)
		return
	}
	c.JSON(appErr.HTTPStatus, body)
}

// ErrorHandler renders the last error a handler attached with c.Error,
// unless the handler already wrote a response.
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		writeAppError(c, logger, errors.MapDomainError(c.Errors.Last().Err), false)
	}
}

// AbortWithAppError is used by middleware that rejects before the handler runs.
func AbortWithAppError(c *gin.Context, appErr *errors.AppError) {
	writeAppError(c, nil, appErr, true)
}

// ErrorResponder binds a request to the logger handlers report through.
type ErrorResponder struct {
	ctx    *gin.Context
	logger *slog.Logger
}

func NewErrorResponder(ctx *gin.Context, logger *slog.Logger) *ErrorResponder {
	return &ErrorResponder{ctx: ctx, logger: logger}
}

// RespondWithError maps domain sentinels (unknown unit, catalog errors,
// claim conflicts) to their HTTP form.
func (r *ErrorResponder) RespondWithError(err error) {
	r.RespondWithAppError(errors.MapDomainError(err))
}

func (r *ErrorResponder) RespondWithAppError(appErr *errors.AppError) {
	writeAppError(r.ctx, r.logger, appErr, false)
}

// logError logs client errors at warn and server errors at error.
func logError(logger *slog.Logger, c *gin.Context, appErr *errors.AppError) {
	level := slog.LevelWarn
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	attrs := []any{
		slog.String("code", appErr.Code),
		slog.Int("status", appErr.HTTPStatus),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("requestId", c.GetString(ContextKeyRequestID)),
	}
	if reason, ok := appErr.Details["reason"]; ok {
		attrs = append(attrs, slog.String("reason", reason))
	}
	if appErr.Err != nil {
		attrs = append(attrs, slog.String("error", appErr.Err.Error()))
	}
	logger.Log(c.Request.Context(), level, appErr.Message, attrs...)
}
