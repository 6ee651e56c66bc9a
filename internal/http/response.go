package http

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

const httpDateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

type responseState int

const (
	writingHead responseState = iota
	writingBody
	done
)

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Response builds and streams the reply to one request.
//
// Status and headers are kept until the first SetBody or End, which writes
// them to the connection. Later SetStatus and SetHeaders calls still update
// the stored values but can no longer reach the wire. Without a
// Content-Length header the body is sent with chunked transfer-coding, one
// chunk per SetBody call. HTTP/1.0 peers cannot decode chunks, so their body
// is sent as-is and delimited by closing the connection.
//
// After End every operation except End returns ErrResponseEnded.
type Response struct {
	ConnID ConnID

	proto        string
	mu           sync.Mutex
	writer       io.Writer
	writeTimeout time.Duration
	state        responseState
	status       StatusCode
	statusSet    bool
	headers      Headers
	chunked      bool
	bodyBytes    int64
	ended        chan struct{}
	now          func() time.Time
}

func newResponse(id ConnID, proto string, w io.Writer, writeTimeout time.Duration) *Response {
	return &Response{
		ConnID:       id,
		proto:        proto,
		writer:       w,
		writeTimeout: writeTimeout,
		state:        writingHead,
		headers:      Headers{},
		ended:        make(chan struct{}),
		now:          time.Now,
	}
}

func (w *Response) SetStatus(sc StatusCode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == done {
		return ErrResponseEnded
	}
	w.status = sc
	w.statusSet = true
	return nil
}

// SetHeaders applies each header with Headers.Set, so a repeated name keeps
// only its last value. If any field is invalid none of them is applied.
func (w *Response) SetHeaders(headers []Header) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == done {
		return ErrResponseEnded
	}
	for _, h := range headers {
		if h.Name == "" || !isValidHeaderName(h.Name) {
			return fmt.Errorf("%w: name %q", ErrInvalidResponseHeader, h.Name)
		}
		if strings.ContainsAny(h.Value, "\r\n\x00") {
			return fmt.Errorf("%w: value of %s contains a control character", ErrInvalidResponseHeader, h.Name)
		}
	}
	for _, h := range headers {
		w.headers.Set(h.Name, h.Value)
	}
	return nil
}

// SetBody writes p to the connection, flushing the head first if needed.
func (w *Response) SetBody(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == done {
		return ErrResponseEnded
	}
	if w.state == writingHead {
		if err := w.writeHead(false); err != nil {
			return err
		}
	}
	if len(p) == 0 {
		return nil
	}

	if !w.chunked {
		if err := w.write(p); err != nil {
			return err
		}
		w.bodyBytes += int64(len(p))
		return nil
	}

	var buf bytes.Buffer
	buf.WriteString(strconv.FormatInt(int64(len(p)), 16))
	buf.Write(crlf)
	buf.Write(p)
	buf.Write(crlf)
	if err := w.write(buf.Bytes()); err != nil {
		return err
	}
	w.bodyBytes += int64(len(p))
	return nil
}

// End finishes the response. Calling it again does nothing.
func (w *Response) End() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == done {
		return nil
	}
	defer func() {
		w.state = done
		close(w.ended)
	}()

	if w.state == writingHead {
		if err := w.writeHead(true); err != nil {
			return err
		}
	}
	if w.chunked {
		return w.write([]byte("0\r\n\r\n"))
	}
	return nil
}

// Done is closed once End has been called.
func (w *Response) Done() <-chan struct{} {
	return w.ended
}

func (w *Response) HeadersSent() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state != writingHead
}

// Status returns the status that is or will be sent.
func (w *Response) Status() StatusCode {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.statusSet {
		return StatusOK
	}
	return w.status
}

func (w *Response) Headers() Headers {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.headers.Clone()
}

// BodyBytes reports how many body bytes have been written so far.
func (w *Response) BodyBytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bodyBytes
}

// writeHead sends the status line and headers. ending is true when End is
// flushing a response that never had a body written.
func (w *Response) writeHead(ending bool) error {
	sc := StatusOK
	if w.statusSet {
		sc = w.status
	}

	headers := w.headers.Clone()
	if !headers.Has("Date") {
		headers.Set("Date", w.now().UTC().Format(httpDateFormat))
	}
	if !headers.Has("Connection") {
		headers.Set("Connection", "close")
	}
	switch {
	case headers.Has("Content-Length"):
	case w.proto == "HTTP/1.0":
		headers.Del("Transfer-Encoding")
		if ending {
			headers.Set("Content-Length", "0")
		}
	case headers.Has("Transfer-Encoding"):
		w.chunked = true
	case ending:
		headers.Set("Content-Length", "0")
	default:
		headers.Set("Transfer-Encoding", "chunked")
		w.chunked = true
	}

	var buf bytes.Buffer
	buf.Write(statusLine(sc))
	for _, h := range headers {
		buf.WriteString(h.Name + ": " + h.Value + "\r\n")
	}
	buf.Write(crlf)

	w.state = writingBody
	return w.write(buf.Bytes())
}

func (w *Response) write(p []byte) error {
	if d, ok := w.writer.(writeDeadliner); ok && w.writeTimeout > 0 {
		if err := d.SetWriteDeadline(w.now().Add(w.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := w.writer.Write(p)
	return err
}
