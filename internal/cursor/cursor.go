// Package cursor converts a store's native pagination marker into an opaque,
// URL-safe continuation token and back.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/fuelsync/fuelsync/internal/kv"
)

// ErrMalformed is returned for tokens that were not produced by Encode.
var ErrMalformed = errors.New("malformed pagination cursor")

// Encode serializes a marker. A nil or empty marker yields "" (no further page).
func Encode(m kv.Marker) string {
	if len(m) == 0 {
		return ""
	}
	// map[string]string always marshals.
	data, _ := json.Marshal(m)
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode reverses Encode. An empty token decodes to a nil marker.
func Decode(token string) (kv.Marker, error) {
	if token == "" {
		return nil, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return nil, ErrMalformed
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) == 0 {
		return nil, ErrMalformed
	}

	m := make(kv.Marker, len(raw))
	for k, v := range raw {
		s, ok := v.(string)
		if !ok || k == "" {
			return nil, ErrMalformed
		}
		m[k] = s
	}
	return m, nil
}
