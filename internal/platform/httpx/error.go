package httpx

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Mayne0963/otw-sub006/internal/platform/requestctx"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
	maxIDLen      = 80
)

// Error is an API failure ready to be rendered. Message is shown to end users, Code is the
// stable value clients branch on.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError builds an Error, defaulting the status to 500 and the message to the status text.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	message = clean(message, maxMessageLen)
	if message == "" {
		message = http.StatusText(status)
	}
	return Error{Code: clean(code, maxCodeLen), Message: message, Status: status}
}

// WithDetails returns a copy of e carrying extra top-level fields. Fields that collide with the
// envelope keys are dropped when written.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) > 0 {
		e.Details = maps.Clone(details)
	}
	return e
}

func (e Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// WriteError renders e as
//
//	{"error": message, "code": code, "status": n, "request_id": ..., "trace_id": ...}
//
// with any details merged alongside.
func WriteError(ctx context.Context, w http.ResponseWriter, e Error) {
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}

	body := make(map[string]any, len(e.Details)+5)
	for k, v := range e.Details {
		body[k] = v
	}
	body["error"] = e.Message
	body["code"] = e.Code
	body["status"] = e.Status
	delete(body, "request_id")
	delete(body, "trace_id")
	if id := clean(middleware.GetReqID(ctx), maxIDLen); id != "" {
		body["request_id"] = id
	}
	if id := clean(requestctx.TraceID(ctx), maxIDLen); id != "" {
		body["trace_id"] = id
	}

	WriteJSON(w, e.Status, body)
}

// WriteJSON writes payload as a JSON body with the given status. A nil payload writes headers only.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// clean flattens value onto one line and truncates it to limit bytes.
func clean(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
