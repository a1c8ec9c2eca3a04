package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Application error codes carried in JSONResponse.Code. The first three
// digits mirror the HTTP status.
const (
	CodeOK              = 0
	CodeBadRequest      = 40000
	CodeNoFile          = 40001
	CodeEmptyFile       = 40002
	CodeUnsupportedType = 40003
	CodeInvalidDeadline = 40004
	CodeInvalidImage    = 40005
	CodeNotFound        = 40400
	CodeTooLarge        = 41300
	CodeRateLimited     = 42901
	CodeQuotaExceeded   = 42902
	CodeInternal        = 50000
	CodeStorageWrite    = 50001
	CodeMetadataWrite   = 50002
	CodeDuplicateID     = 50003
)

// JSONResponse defines the uniform structure for API responses.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Respond writes a JSON response with the given status code.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success returns a standard success response.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusOK, CodeOK, "success", data)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}
