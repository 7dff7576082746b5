package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxBodyBytes caps request bodies accepted by JSON handlers.
const DefaultMaxBodyBytes int64 = 64 * 1024

var (
	// ErrEmptyBody is returned when a JSON body is required but absent.
	ErrEmptyBody = errors.New("httpx: request body is empty")
	// ErrBodyTooLarge is returned when the body exceeds the configured limit.
	ErrBodyTooLarge = errors.New("httpx: request body too large")
	// ErrMalformedBody is returned when the body is not valid JSON for the target.
	ErrMalformedBody = errors.New("httpx: request body is not valid JSON")
)

// ReadLimitedBody reads at most max bytes from the request body.
func ReadLimitedBody(r *http.Request, max int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, ErrEmptyBody
	}
	if max <= 0 {
		max = DefaultMaxBodyBytes
	}
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, ErrBodyTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyBody
	}
	return data, nil
}

// DecodeJSON reads a bounded body and decodes it into dst. Numbers decode as json.Number so
// integer-only fields can be validated without float rounding.
func DecodeJSON(r *http.Request, max int64, dst any) error {
	data, err := ReadLimitedBody(r, max)
	if err != nil {
		return err
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}

// BodyError converts body decoding failures into envelopes.
func BodyError(err error) Error {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge)
	case errors.Is(err, ErrEmptyBody):
		return NewError("invalid_request", "request body is required", http.StatusBadRequest)
	default:
		return NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest)
	}
}
