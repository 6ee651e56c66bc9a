package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type parserState int

const (
	parsingRequestLine parserState = iota
	parsingHeaders
	parsingBody
	parsingDone
)

type bodyFraming int

const (
	framingNone bodyFraming = iota
	framingFixed
	framingChunked
)

type chunkedBodyState int

const (
	readChunkSize chunkedBodyState = iota
	readChunk
	readChunkEnd
	readTrailers
)

const (
	initialBufferSize = 1024
	maxChunkLineSize  = 4096
)

var crlf = []byte("\r\n")

// parser reads one request from a stream. The head is parsed into line and
// headers, then the body is handed out chunk by chunk in arrival order.
type parser struct {
	r              io.Reader
	buf            []byte
	unconsumed     int
	eof            bool
	state          parserState
	line           RequestLine
	headers        Headers
	maxHeaderBytes int
	headBytes      int

	framing   bodyFraming
	remaining int64 // bytes left in the fixed body or the current chunk
	cbState   chunkedBodyState
}

func newParser(r io.Reader, maxHeaderBytes int) *parser {
	return &parser{
		r:              r,
		buf:            make([]byte, initialBufferSize),
		state:          parsingRequestLine,
		headers:        Headers{},
		maxHeaderBytes: maxHeaderBytes,
	}
}

// fill reads once from the underlying stream into the free part of buf.
func (p *parser) fill() error {
	if p.eof {
		return io.ErrUnexpectedEOF
	}
	if p.unconsumed == len(p.buf) {
		p.buf = grow(p.buf)
	}
	n, err := p.r.Read(p.buf[p.unconsumed:])
	p.unconsumed += n
	if errors.Is(err, io.EOF) {
		p.eof = true
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
		return nil
	}
	return err
}

func (p *parser) consume(n int) {
	copy(p.buf, p.buf[n:p.unconsumed])
	p.unconsumed -= n
}

// readHead parses the request line and the header block. A stream that ends
// before sending a single byte returns io.EOF.
func (p *parser) readHead() error {
	for p.state < parsingBody {
		n, err := p.parseHead(p.buf[:p.unconsumed])
		if err != nil {
			return err
		}
		if n != 0 {
			p.consume(n)
			continue
		}
		if p.maxHeaderBytes > 0 && p.headBytes+p.unconsumed >= p.maxHeaderBytes {
			return ErrHeadersTooLarge
		}
		if err := p.fill(); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) && p.state == parsingRequestLine && p.unconsumed == 0 {
				return io.EOF
			}
			return fmt.Errorf("incomplete request head: %w", err)
		}
	}
	return p.detectFraming()
}

func (p *parser) parseHead(data []byte) (int, error) {
	total := 0
	for p.state < parsingBody {
		var n int
		var err error
		switch p.state {
		case parsingRequestLine:
			n, err = p.line.parse(data[total:])
			if err == nil && n != 0 {
				p.state = parsingHeaders
			}
		case parsingHeaders:
			var done bool
			n, done, err = p.headers.parse(data[total:])
			if err == nil && done {
				p.state = parsingBody
			}
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			break // need more data
		}
		total += n
		p.headBytes += n
	}
	return total, nil
}

func (p *parser) detectFraming() error {
	te := p.headers.Values("Transfer-Encoding")
	cl := p.headers.Values("Content-Length")

	if len(te) > 0 && len(cl) > 0 {
		return fmt.Errorf("%w: both Transfer-Encoding and Content-Length present", ErrInvalidFraming)
	}
	if len(te) > 0 {
		codings := strings.Split(strings.Join(te, ","), ",")
		last := strings.TrimSpace(codings[len(codings)-1])
		if !strings.EqualFold(last, "chunked") {
			return fmt.Errorf("%w: unsupported transfer-coding %q", ErrInvalidFraming, last)
		}
		p.framing = framingChunked
		p.cbState = readChunkSize
		return nil
	}
	if len(cl) > 0 {
		length := int64(-1)
		for _, v := range cl {
			v = strings.TrimSpace(v)
			if !isDigits(v, false) {
				return fmt.Errorf("%w: invalid Content-Length %q", ErrInvalidFraming, v)
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: invalid Content-Length %q", ErrInvalidFraming, v)
			}
			if length != -1 && n != length {
				return fmt.Errorf("%w: conflicting Content-Length values", ErrInvalidFraming)
			}
			length = n
		}
		if length > 0 {
			p.framing = framingFixed
			p.remaining = length
			return nil
		}
	}
	p.framing = framingNone
	p.state = parsingDone
	return nil
}

// readBody hands every body chunk to emit in arrival order and returns nil
// once the body is complete. emit must not retain the slice.
func (p *parser) readBody(emit func([]byte) error) error {
	var err error
	switch p.framing {
	case framingFixed:
		err = p.readFixed(emit)
	case framingChunked:
		err = p.readChunked(emit)
	}
	if err != nil {
		return err
	}
	p.state = parsingDone
	return nil
}

func (p *parser) readFixed(emit func([]byte) error) error {
	for p.remaining > 0 {
		if p.unconsumed == 0 {
			if err := p.fill(); err != nil {
				return fmt.Errorf("incomplete body: %w", err)
			}
			continue
		}
		n := int(min(int64(p.unconsumed), p.remaining))
		if err := emit(p.buf[:n]); err != nil {
			return err
		}
		p.consume(n)
		p.remaining -= int64(n)
	}
	return nil
}

func (p *parser) readChunked(emit func([]byte) error) error {
	for {
		n, finished, err := p.parseChunked(emit)
		if err != nil {
			return err
		}
		if finished {
			return nil
		}
		if n != 0 {
			continue
		}
		if err := p.fill(); err != nil {
			return fmt.Errorf("incomplete chunked body: %w", err)
		}
	}
}

// parseChunked advances the chunked state machine over buffered bytes. It
// returns 0 when more data is needed.
func (p *parser) parseChunked(emit func([]byte) error) (int, bool, error) {
	data := p.buf[:p.unconsumed]
	switch p.cbState {
	case readChunkSize:
		idx := bytes.Index(data, crlf)
		if idx == -1 {
			if len(data) > maxChunkLineSize {
				return 0, false, fmt.Errorf("%w: chunk size line too long", ErrMalformedChunk)
			}
			return 0, false, nil
		}
		line := string(data[:idx])
		if semi := strings.IndexByte(line, ';'); semi != -1 {
			line = line[:semi] // chunk extensions are ignored
		}
		line = strings.TrimSpace(line)
		if !isDigits(line, true) {
			return 0, false, fmt.Errorf("%w: invalid chunk size %q", ErrMalformedChunk, line)
		}
		size, err := strconv.ParseInt(line, 16, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: invalid chunk size %q", ErrMalformedChunk, line)
		}
		p.consume(idx + 2)
		if size == 0 {
			p.cbState = readTrailers
		} else {
			p.remaining = size
			p.cbState = readChunk
		}
		return idx + 2, false, nil
	case readChunk:
		if len(data) == 0 {
			return 0, false, nil
		}
		n := int(min(int64(len(data)), p.remaining))
		if err := emit(data[:n]); err != nil {
			return 0, false, err
		}
		p.consume(n)
		p.remaining -= int64(n)
		if p.remaining == 0 {
			p.cbState = readChunkEnd
		}
		return n, false, nil
	case readChunkEnd:
		if len(data) < 2 {
			return 0, false, nil
		}
		if !bytes.HasPrefix(data, crlf) {
			return 0, false, fmt.Errorf("%w: chunk data longer than chunk size", ErrMalformedChunk)
		}
		p.consume(2)
		p.cbState = readChunkSize
		return 2, false, nil
	case readTrailers:
		idx := bytes.Index(data, crlf)
		if idx == -1 {
			if len(data) > maxChunkLineSize {
				return 0, false, fmt.Errorf("%w: trailer line too long", ErrMalformedChunk)
			}
			return 0, false, nil
		}
		p.consume(idx + 2)
		// Trailer fields are discarded; an empty line ends the body.
		return idx + 2, idx == 0, nil
	default:
		return 0, false, fmt.Errorf("unknown chunked body state: %d", p.cbState)
	}
}

// readRequest reads the head and the whole body of one request. The parser
// is returned so callers can reach the request line and headers.
func readRequest(r io.Reader, maxHeaderBytes int, onData func([]byte) error) (*parser, error) {
	p := newParser(r, maxHeaderBytes)
	if err := p.readHead(); err != nil {
		return nil, err
	}
	if err := p.readBody(onData); err != nil {
		return nil, err
	}
	return p, nil
}
