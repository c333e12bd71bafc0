// api/middleware/error_handler.go
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10" // Import validator for binding errors

	"github.com/Annany2002/dataspace-backend/api/models"
	"github.com/Annany2002/dataspace-backend/internal/auth"
	"github.com/Annany2002/dataspace-backend/internal/errs"
	"github.com/Annany2002/dataspace-backend/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

const genericServerError = "An unexpected internal server error occurred."

// ErrorHandler creates a Gin middleware for centralized error handling.
// Handlers attach errors with c.Error and return; the last one decides the response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		last := c.Errors.Last()
		status, tag, message := classify(last)

		if status >= http.StatusInternalServerError {
			customLog.Errorf("[ErrorHandler] %s %s: %v (%T)", c.Request.Method, c.FullPath(), last.Err, last.Err)
		} else {
			customLog.Printf("[ErrorHandler] %s %s -> %d %s: %v", c.Request.Method, c.FullPath(), status, tag, last.Err)
		}

		if c.Writer.Written() {
			customLog.Warnf("[ErrorHandler] Response already written before handling error.")
			return
		}
		c.AbortWithStatusJSON(status, models.ErrorResponse{
			ErrorType: tag,
			Message:   message,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func classify(ginErr *gin.Error) (int, string, string) {
	err := ginErr.Err

	if appErr, ok := errs.As(err); ok {
		return appErr.HTTPStatus(), appErr.Tag, appErr.Message
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return http.StatusUnprocessableEntity, string(errs.KindValidation), describeValidation(validationErrs)
	}
	if ginErr.IsType(gin.ErrorTypeBind) {
		return http.StatusUnprocessableEntity, "INVALID_REQUEST_BODY", "Request body is malformed or incomplete."
	}

	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "TOKEN_EXPIRED", "Authentication token has expired."
	case errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenClaimsInvalid),
		errors.Is(err, auth.ErrUnexpectedSigningMethod):
		return http.StatusUnauthorized, "INVALID_TOKEN", "Could not validate credentials."
	}

	return http.StatusInternalServerError, string(errs.KindInternal), genericServerError
}

func describeValidation(validationErrs validator.ValidationErrors) string {
	fields := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return "Validation failed for: " + strings.Join(fields, ", ")
}
