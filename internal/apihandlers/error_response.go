package apihandlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"bigscreen/internal/models"
	"bigscreen/internal/pipeline"
	"bigscreen/internal/store"
)

// APIError is the body of every error response.
// Example: { "error": { "code": "bad_request", "message": "source is required" } }
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

func JSONError(ctx *gin.Context, status int, code, msg string) {
	ctx.JSON(status, errorResponse{Error: APIError{Code: code, Message: msg}})
}

func BadRequest(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusBadRequest, "bad_request", msg)
}

func NotFound(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusNotFound, "not_found", msg)
}

func Internal(ctx *gin.Context, msg string) {
	log.Errorf("API internal error on %s %s: %s", ctx.Request.Method, ctx.FullPath(), msg)
	JSONError(ctx, http.StatusInternalServerError, "internal_error", "internal server error")
}

func Unavailable(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusServiceUnavailable, "unavailable", msg)
}

// BackendError reports a failure of the analysis backend behind us.
func BackendError(ctx *gin.Context, err error) {
	JSONError(ctx, http.StatusBadGateway, "backend_error", pipeline.UserMessage(err))
}

// RespondError maps err onto the matching status. where prefixes the
// logged message of unexpected errors.
func RespondError(ctx *gin.Context, where string, err error) {
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrUnknownSource):
		BadRequest(ctx, err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, models.ErrNotFound):
		NotFound(ctx, err.Error())
	case errors.Is(err, pipeline.ErrSequencerClosed):
		Unavailable(ctx, "server is shutting down")
	default:
		Internal(ctx, where+": "+err.Error())
	}
}
