package http

import (
	"bytes"
	"fmt"
	"strings"
)

type Header struct {
	Name  string
	Value string
}

// Headers keeps header fields in the order they were received or set.
// Repeated names stay as separate entries.
type Headers []Header

func (h Headers) Get(key string) string {
	// Header names are case-insensitive
	for _, f := range h {
		if strings.EqualFold(f.Name, key) {
			return f.Value
		}
	}
	return ""
}

func (h Headers) Values(key string) []string {
	var values []string
	for _, f := range h {
		if strings.EqualFold(f.Name, key) {
			values = append(values, f.Value)
		}
	}
	return values
}

func (h Headers) Has(key string) bool {
	for _, f := range h {
		if strings.EqualFold(f.Name, key) {
			return true
		}
	}
	return false
}

// Overwrites every field named key. The new value takes the position of the
// first match, or is appended when there is none.
func (h *Headers) Set(key string, value string) {
	if key == "" {
		return
	}
	out := (*h)[:0]
	replaced := false
	for _, f := range *h {
		if !strings.EqualFold(f.Name, key) {
			out = append(out, f)
			continue
		}
		if !replaced {
			out = append(out, Header{Name: key, Value: value})
			replaced = true
		}
	}
	if !replaced {
		out = append(out, Header{Name: key, Value: value})
	}
	*h = out
}

// Adds a field without touching existing ones
func (h *Headers) Add(key string, value string) {
	if key == "" {
		return
	}
	*h = append(*h, Header{Name: key, Value: value})
}

func (h *Headers) Del(key string) {
	out := (*h)[:0]
	for _, f := range *h {
		if !strings.EqualFold(f.Name, key) {
			out = append(out, f)
		}
	}
	*h = out
}

// Map merges repeated fields with ", " (RFC 9110 5.3). Keys are lower-cased.
func (h Headers) Map() map[string]string {
	m := make(map[string]string, len(h))
	for _, f := range h {
		name := strings.ToLower(f.Name)
		if existing, ok := m[name]; ok {
			m[name] = existing + ", " + f.Value
		} else {
			m[name] = f.Value
		}
	}
	return m
}

func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	return append(Headers(nil), h...)
}

func (h *Headers) parse(data []byte) (int, bool, error) {
	idx := bytes.Index(data, crlf)
	if idx == -1 {
		return 0, false, nil
	}
	if idx == 0 {
		return 2, true, nil // found end of headers, consume crlf
	}

	parts := strings.SplitN(string(data[:idx]), ":", 2)
	if len(parts) != 2 {
		return 0, false, fmt.Errorf("%w: '%s'", ErrInvalidHeader, string(data[:idx]))
	}

	key := parts[0]
	value := strings.Trim(parts[1], " \t")
	if key == "" || strings.TrimRight(key, " \t") != key {
		return 0, false, fmt.Errorf("%w: invalid key '%s'", ErrInvalidHeader, key)
	}
	if !isValidHeaderName(key) {
		return 0, false, fmt.Errorf("%w: invalid character in name '%s'", ErrInvalidHeader, key)
	}

	h.Add(key, value)
	return idx + 2, false, nil
}

// See RFC 9110 5.1 and 5.6.2
func isValidHeaderName(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '!' || r == '#' || r == '$' || r == '%' || r == '&' ||
			r == '\'' || r == '*' || r == '+' || r == '-' || r == '.' ||
			r == '^' || r == '_' || r == '`' || r == '|' || r == '~':
			continue
		default:
			return false
		}
	}
	return true
}
