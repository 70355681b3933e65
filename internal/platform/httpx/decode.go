package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultMaxJSONBytes bounds JSON request bodies.
const DefaultMaxJSONBytes int64 = 1 << 20

// DecodeJSON reads a single JSON object from the request body into dst.
// Unknown fields are rejected; an empty body is reported as invalid.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) *Error {
	if limit <= 0 {
		limit = DefaultMaxJSONBytes
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		e := NewError("unsupported_media_type", "content type must be application/json", http.StatusUnsupportedMediaType)
		return &e
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			e := NewError("payload_too_large", fmt.Sprintf("request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
			return &e
		case errors.Is(err, io.EOF):
			e := NewError("invalid_request", "request body is required", http.StatusBadRequest)
			return &e
		default:
			e := NewError("invalid_request", "request body is not valid JSON: "+err.Error(), http.StatusBadRequest)
			return &e
		}
	}
	if decoder.More() {
		e := NewError("invalid_request", "request body must contain a single JSON object", http.StatusBadRequest)
		return &e
	}
	return nil
}
