package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/cloudvault/cloudvault-backend/internal/pkg/errors"
)

// Response is the uniform API envelope
type Response struct {
	Code    int         `json:"code"`              // business code, 0 on success
	Message string      `json:"message,omitempty"` // human-readable message
	Data    interface{} `json:"data"`              // payload, {} when empty
	Fields  interface{} `json:"fields,omitempty"`  // structured error data (shortfall, unhealthy backends, ...)
}

// Success writes a 200 response
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusOK, Response{
		Code: apperrors.Success,
		Data: data,
	})
}

// Created writes a 201 response
func Created(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusCreated, Response{
		Code: apperrors.Success,
		Data: data,
	})
}

// Error maps an error onto the envelope using the business code table. AppError
// codes carry their own HTTP status and structured fields; anything else is a 500.
func Error(c *gin.Context, err error) {
	code := apperrors.ExtractCode(err)
	c.JSON(apperrors.GetHTTPStatus(code), Response{
		Code:    code,
		Message: apperrors.FormatError(code, apperrors.GetDetails(err)),
		Data:    struct{}{},
		Fields:  apperrors.ExtractFields(err),
	})
}

// BadRequest writes a 400 with the given message
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    apperrors.ErrBadRequest,
		Message: message,
		Data:    struct{}{},
	})
}

// Unauthorized writes a 401 with the given message
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Code:    apperrors.ErrUnauthorized,
		Message: message,
		Data:    struct{}{},
	})
}
