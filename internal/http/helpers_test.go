package http

import "io"

type chunkReader struct {
	data            string
	numBytesPerRead int
	pos             int
}

// Read reads up to len(p) or numBytesPerRead bytes from the string per call
func (cr *chunkReader) Read(p []byte) (n int, err error) {
	if cr.pos >= len(cr.data) {
		return 0, io.EOF
	}
	endIndex := min(cr.pos+cr.numBytesPerRead, len(cr.data))
	n = copy(p, cr.data[cr.pos:endIndex])
	cr.pos += n
	return n, nil
}

// Fake Close
func (cr *chunkReader) Close() error {
	return nil
}

// parseRequest reads one complete request from reader without limits and
// decodes it against defaultHost.
func parseRequest(reader io.Reader, defaultHost string) (*Request, error) {
	var body []byte
	p, err := readRequest(reader, 0, func(chunk []byte) error {
		body = append(body, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	req, err := Decode(p.line.Target, p.headers, p.line.Method, body, defaultHost)
	if err != nil {
		return nil, err
	}
	req.Proto = p.line.Version
	return req, nil
}

// ended reports whether End has completed on res.
func ended(res *Response) bool {
	select {
	case <-res.Done():
		return true
	default:
		return false
	}
}
