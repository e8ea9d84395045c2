package jsonp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// commentPrefix is emitted by some servers ahead of the callback name to
// defuse content sniffing.
var commentPrefix = []byte("/**/")

// ParseEnvelope splits a JSONP body of the form `name(<json>);` into the
// callback name and its JSON argument. A call with no argument yields a null
// payload.
func ParseEnvelope(body []byte) (string, json.RawMessage, error) {
	b := bytes.TrimSpace(body)
	b = bytes.TrimSpace(bytes.TrimPrefix(b, commentPrefix))
	b = bytes.TrimSpace(bytes.TrimSuffix(b, []byte(";")))

	open := bytes.IndexByte(b, '(')
	if open < 0 || len(b) == 0 || b[len(b)-1] != ')' {
		return "", nil, fmt.Errorf("%w: expected name(...)", ErrMalformedScript)
	}

	name := string(bytes.TrimSpace(b[:open]))
	if !isIdentifier(name) {
		return "", nil, fmt.Errorf("%w: invalid callback name %q", ErrMalformedScript, name)
	}

	arg := bytes.TrimSpace(b[open+1 : len(b)-1])
	if len(arg) == 0 {
		return name, json.RawMessage("null"), nil
	}
	if !json.Valid(arg) {
		return "", nil, fmt.Errorf("%w: argument is not valid JSON", ErrMalformedScript)
	}

	payload := make(json.RawMessage, len(arg))
	copy(payload, arg)
	return name, payload, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || c == '$':
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
