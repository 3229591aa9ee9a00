package web

// errors.go provides unified error responses for the API.
//
// Every error is logged with its technical detail and request id, then
// mapped through core.MapError to a user-facing message and support code.
// The status code is chosen from the error's identity, never its text.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/schoolbulk/internal/core"
	"github.com/JonMunkholm/schoolbulk/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// errBadRequest marks client mistakes that have no domain sentinel.
var errBadRequest = errors.New("invalid request body")

// statusFor picks the HTTP status for an error.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrModuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrHeaderMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrUnreadableFile),
		errors.Is(err, core.ErrEmptyFile),
		errors.Is(err, core.ErrNoModulesSelected),
		errors.Is(err, core.ErrNoRetryEntries),
		errors.Is(err, core.ErrAccountsNotSupported),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped JSON error response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}

	var mismatch *core.HeaderMismatchError
	if errors.As(err, &mismatch) {
		resp.Details = mismatch.Mismatch
	}
	var notFound *core.ModuleNotFoundError
	if errors.As(err, &notFound) {
		resp.Details = map[string]string{"module": notFound.ID}
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(5))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("json encode error", "error", err)
	}
}
