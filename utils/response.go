package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSONResponse is the envelope every endpoint answers with. Code 0 is success;
// failures carry a five-digit code whose first three digits are the HTTP status.
// Data holds the payload, or diagnostics such as the measured distance on a failed check-in.
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
	Respond(ctx, http.StatusOK, 0, "success", data)
}

// Created answers a POST that stored a new row.
func Created(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusCreated, 0, "created", data)
}

// Fail writes a failure with diagnostics; a nil data is dropped from the body.
func Fail(ctx *gin.Context, status int, code int, message string, data map[string]interface{}) {
	if len(data) == 0 {
		Respond(ctx, status, code, message, nil)
		return
	}
	Respond(ctx, status, code, message, data)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	Fail(ctx, status, code, message, nil)
}
