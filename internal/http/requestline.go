package http

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
)

type RequestLine struct {
	Method  string
	Target  string
	Version string
}

func (rl *RequestLine) parse(data []byte) (int, error) {
	idx := bytes.Index(data, crlf)
	if idx == -1 {
		return 0, nil
	}

	// parts[0] = method, parts[1] = request-target, parts[2] = HTTP version
	parts := strings.Split(string(data[:idx]), " ")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: must have 3 space-separated parts", ErrMalformedRequestLine)
	}
	if parts[0] == "" || !isUpper(parts[0]) {
		return 0, fmt.Errorf("%w: method must only contain uppercase letters", ErrMalformedRequestLine)
	}
	if parts[1] == "" {
		return 0, fmt.Errorf("%w: empty request-target", ErrMalformedRequestLine)
	}
	if parts[2] != "HTTP/1.1" && parts[2] != "HTTP/1.0" {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedVersion, parts[2])
	}

	rl.Method = parts[0]
	rl.Target = parts[1]
	rl.Version = parts[2]

	return idx + 2, nil
}

func isUpper(s string) bool {
	for _, r := range s {
		if !unicode.IsUpper(r) && unicode.IsLetter(r) {
			return false
		}
		if unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
