package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Mayne0963/otw-sub006/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "trace-1"})
	rr := httptest.NewRecorder()

	WriteError(ctx, rr, NewError("session_mismatch", "session does not belong to order\n", http.StatusBadRequest).
		WithDetails(map[string]any{"orderId": "GRO-1-ABCDEF01", "error": "ignored"}))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %s", ct)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["error"] != "session does not belong to order" {
		t.Fatalf("unexpected error message %v", payload["error"])
	}
	if payload["code"] != "session_mismatch" {
		t.Fatalf("unexpected code %v", payload["code"])
	}
	if payload["trace_id"] != "trace-1" {
		t.Fatalf("expected trace id, got %v", payload["trace_id"])
	}
	if payload["orderId"] != "GRO-1-ABCDEF01" {
		t.Fatalf("expected details to be merged, got %v", payload)
	}
}

func TestNewErrorDefaults(t *testing.T) {
	err := NewError("internal", "", 0)
	if err.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 default, got %d", err.Status)
	}
	if err.Message != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("expected status text fallback, got %q", err.Message)
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Amount json.Number `json:"amount"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount": 2599}`))
	if err := DecodeJSON(req, 0, &dst); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dst.Amount.String() != "2599" {
		t.Fatalf("expected json number, got %s", dst.Amount)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("   "))
	if err := DecodeJSON(req, 0, &dst); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount": 1}`))
	if err := DecodeJSON(req, 4, &dst); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":`))
	err := DecodeJSON(req, 0, &dst)
	if !errors.Is(err, ErrMalformedBody) {
		t.Fatalf("expected ErrMalformedBody, got %v", err)
	}
	if BodyError(err).Status != http.StatusBadRequest {
		t.Fatalf("expected malformed body to map to 400")
	}
}
