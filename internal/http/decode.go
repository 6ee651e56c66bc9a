package http

import (
	"fmt"
	"net/url"
)

// ConnID identifies one accepted connection for the lifetime of a Server.
type ConnID uint64

// Request is a fully received request. It is not modified after dispatch.
type Request struct {
	ConnID   ConnID
	Proto    string
	Protocol string
	Host     string
	Port     string
	Path     string
	Query    string
	Fragment string
	Method   string
	Headers  Headers
	Body     []byte
}

// Decode builds a Request from the raw request-target, header list, method
// and body. The target is resolved against a base built from the Host header,
// or defaultHost when the request has none, so absolute URL parts are always
// available. Nothing is percent-decoded.
func Decode(rawURL string, headers Headers, method string, body []byte, defaultHost string) (*Request, error) {
	host := headers.Get("Host")
	if host == "" {
		host = defaultHost
	}

	base, err := url.Parse("http://" + host)
	if err != nil {
		return nil, fmt.Errorf("%w: host %q: %v", ErrInvalidURL, host, err)
	}
	if base.Path != "" || base.RawQuery != "" || base.Fragment != "" || base.User != nil {
		return nil, fmt.Errorf("%w: host %q", ErrInvalidURL, host)
	}

	ref, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	u := base.ResolveReference(ref)

	req := &Request{
		Protocol: u.Scheme + ":",
		Host:     u.Hostname(),
		Port:     u.Port(),
		Path:     u.EscapedPath(),
		Method:   method,
		Headers:  headers,
		Body:     body,
	}
	if u.RawQuery != "" {
		req.Query = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		req.Fragment = "#" + u.EscapedFragment()
	}
	if req.Body == nil {
		req.Body = []byte{}
	}
	return req, nil
}

// URL reassembles the absolute request URL.
func (r *Request) URL() string {
	host := r.Host
	if r.Port != "" {
		host += ":" + r.Port
	}
	return r.Protocol + "//" + host + r.Path + r.Query + r.Fragment
}
