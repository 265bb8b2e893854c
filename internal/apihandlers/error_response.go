package apihandlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError is the body of every error response:
// { "error": { "code": "batch_failed", "message": "..." } }
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

// JSONError aborts the request with a structured error.
func JSONError(ctx *gin.Context, status int, code, msg string) {
	ctx.AbortWithStatusJSON(status, errorResponse{Error: APIError{Code: code, Message: msg}})
}

func BadRequest(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusBadRequest, "bad_request", msg)
}

func NotFound(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusNotFound, "not_found", msg)
}

func Conflict(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusConflict, "conflict", msg)
}

func Unavailable(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusServiceUnavailable, "unavailable", msg)
}

func Internal(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusInternalServerError, "internal_error", msg)
}
