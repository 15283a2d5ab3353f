package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "zapgastos/internal/errors"
	"zapgastos/internal/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// Bind errors become INVALID_INPUT.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		last := c.Errors.Last()
		if last.IsType(gin.ErrorTypeBind) {
			WriteError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, last.Err.Error()))
			return
		}
		WriteError(c, last.Err)
	}
}

// WriteError writes {"error":{"code","message","request_id"}}. The request id
// lets chat bot failures be traced in the logs. Anything that is not an
// *AppError is logged and reported as INTERNAL_ERROR without details.
func WriteError(c *gin.Context, err error) {
	requestID := RequestID(c)
	log := logger.Named("http").With("request_id", requestID, "path", c.Request.URL.Path)

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Internal != nil {
			log.Errorw("app error", "code", appErr.Code, "internal", appErr.Internal.Error())
		}
	} else {
		log.Errorw("unexpected error", "error", err.Error(), "method", c.Request.Method)
		appErr = apperrors.ErrInternalServer
	}

	body := gin.H{"code": appErr.Code, "message": appErr.Message}
	if requestID != "" {
		body["request_id"] = requestID
	}
	c.JSON(appErr.StatusCode, gin.H{"error": body})
}
