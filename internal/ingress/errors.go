package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/AnyUserName/imgpress/internal/encoder"
	"github.com/AnyUserName/imgpress/internal/metadata"
	"github.com/AnyUserName/imgpress/internal/naming"
	"github.com/AnyUserName/imgpress/internal/pipeline"
)

// Error codes in JSON error bodies.
const (
	CodeBadRequest        = "bad_request"
	CodePayloadTooLarge   = "payload_too_large"
	CodeUnsupportedFormat = "unsupported_format"
	CodeNamingExhausted   = "naming_exhausted"
	CodeUploadFailed      = "upload_failed"
	CodeCancelled         = "cancelled"
	CodeInternal          = "internal"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusFor maps an error to an HTTP status and error code. Classification
// uses the error types only, never the message text.
func StatusFor(err error) (int, string) {
	var (
		tooLarge    *encoder.PayloadTooLargeError
		unsupported *encoder.UnsupportedFormatError
		reqErr      *RequestError
		invalid     *metadata.InvalidMetadataError
		exhausted   *naming.NamingExhaustedError
		uploadErr   *pipeline.UploadError
		maxBytes    *http.MaxBytesError
	)
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeCancelled
	case errors.As(err, &tooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, CodePayloadTooLarge
	case errors.As(err, &unsupported):
		return http.StatusUnsupportedMediaType, CodeUnsupportedFormat
	case errors.As(err, &reqErr), errors.As(err, &invalid), errors.Is(err, pipeline.ErrUnknownProfile):
		return http.StatusBadRequest, CodeBadRequest
	case errors.As(err, &exhausted):
		return http.StatusInternalServerError, CodeNamingExhausted
	case errors.As(err, &uploadErr):
		return http.StatusInternalServerError, CodeUploadFailed
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (s *Server) writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status, code := StatusFor(err)
	if status >= 500 {
		log.Error("request failed", "code", code, "error", err)
	} else {
		log.Info("request rejected", "code", code, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
