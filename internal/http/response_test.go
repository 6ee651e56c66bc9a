package http

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lieberdev/hostd/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, time.March, 1, 12, 30, 0, 0, time.UTC)

const fixedDate = "Fri, 01 Mar 2024 12:30:00 GMT"

func newTestResponse(w *bytes.Buffer) *Response {
	res := newResponse(1, "HTTP/1.1", w, 0)
	res.now = func() time.Time { return fixedNow }
	return res
}

type failingWriter struct{}

type deadlineWriter struct {
	bytes.Buffer
	deadlines []time.Time
}

func (w *deadlineWriter) SetWriteDeadline(t time.Time) error {
	w.deadlines = append(w.deadlines, t)
	return nil
}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func TestResponseEndWithoutBody(t *testing.T) {
	var buf bytes.Buffer
	res := newTestResponse(&buf)

	require.NoError(t, res.End())
	assert.Equal(t, "HTTP/1.1 200 OK\r\n"+
		"Date: "+fixedDate+"\r\n"+
		"Connection: close\r\n"+
		"Content-Length: 0\r\n"+
		"\r\n", buf.String())
	assert.True(t, ended(res))

	select {
	case <-res.Done():
	default:
		t.Fatal("Done should be closed after End")
	}
}

func TestResponseHeadersLastWriteWins(t *testing.T) {
	var buf bytes.Buffer
	res := newTestResponse(&buf)

	require.NoError(t, res.SetHeaders([]Header{{Name: "X", Value: "1"}}))
	require.NoError(t, res.SetHeaders([]Header{{Name: "X", Value: "2"}}))
	require.NoError(t, res.SetHeaders([]Header{
		{Name: "Y", Value: "a"},
		{Name: "Y", Value: "b"},
	}))
	assert.Equal(t, Headers{{Name: "X", Value: "2"}, {Name: "Y", Value: "b"}}, res.Headers())

	require.NoError(t, res.End())
	assert.Contains(t, buf.String(), "\r\nX: 2\r\n")
	assert.NotContains(t, buf.String(), "X: 1")
	assert.NotContains(t, buf.String(), "Y: a")
}

func TestResponseChunkedBody(t *testing.T) {
	var buf bytes.Buffer
	res := newTestResponse(&buf)

	require.NoError(t, res.SetStatus(StatusCreated))
	require.NoError(t, res.SetHeaders([]Header{{Name: "Content-Type", Value: "text/plain"}}))
	require.NoError(t, res.SetBody([]byte("hello ")))
	assert.True(t, res.HeadersSent())
	require.NoError(t, res.SetBody([]byte("world!!!!!!!")))
	require.NoError(t, res.SetBody(nil))
	require.NoError(t, res.End())

	assert.Equal(t, "HTTP/1.1 201 Created\r\n"+
		"Content-Type: text/plain\r\n"+
		"Date: "+fixedDate+"\r\n"+
		"Connection: close\r\n"+
		"Transfer-Encoding: chunked\r\n"+
		"\r\n"+
		"6\r\nhello \r\n"+
		"c\r\nworld!!!!!!!\r\n"+
		"0\r\n\r\n", buf.String())
	assert.Equal(t, int64(18), res.BodyBytes())
}

func TestResponseFixedLengthBody(t *testing.T) {
	var buf bytes.Buffer
	res := newTestResponse(&buf)

	require.NoError(t, res.SetHeaders([]Header{
		{Name: "Content-Length", Value: "5"},
		{Name: "Connection", Value: "keep-alive"},
		{Name: "Date", Value: "yesterday"},
	}))
	require.NoError(t, res.SetBody([]byte("hel")))
	require.NoError(t, res.SetBody([]byte("lo")))
	require.NoError(t, res.End())

	assert.Equal(t, "HTTP/1.1 200 OK\r\n"+
		"Content-Length: 5\r\n"+
		"Connection: keep-alive\r\n"+
		"Date: yesterday\r\n"+
		"\r\n"+
		"hello", buf.String())
}

func TestResponseAfterHeadFlush(t *testing.T) {
	var buf bytes.Buffer
	res := newTestResponse(&buf)

	require.NoError(t, res.SetBody([]byte("x")))
	require.NoError(t, res.SetStatus(StatusNotFound))
	require.NoError(t, res.SetHeaders([]Header{{Name: "X-Late", Value: "1"}}))
	require.NoError(t, res.End())

	assert.Contains(t, buf.String(), "HTTP/1.1 200 OK\r\n")
	assert.NotContains(t, buf.String(), "X-Late")
	assert.Equal(t, StatusNotFound, res.Status())
}

func TestResponseAfterEnd(t *testing.T) {
	var buf bytes.Buffer
	res := newTestResponse(&buf)
	require.NoError(t, res.End())
	written := buf.String()

	assert.ErrorIs(t, res.SetStatus(StatusOK), ErrResponseEnded)
	assert.ErrorIs(t, res.SetHeaders([]Header{{Name: "X", Value: "1"}}), ErrResponseEnded)
	assert.ErrorIs(t, res.SetBody([]byte("late")), ErrResponseEnded)
	assert.NoError(t, res.End())
	assert.Equal(t, written, buf.String())
}

func TestResponseUnknownStatus(t *testing.T) {
	var buf bytes.Buffer
	res := newTestResponse(&buf)
	require.NoError(t, res.SetStatus(799))
	require.NoError(t, res.End())
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("HTTP/1.1 799 \r\n")))
}

func TestResponseWriteError(t *testing.T) {
	res := newResponse(1, "HTTP/1.1", failingWriter{}, time.Second)

	err := res.SetBody([]byte("data"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	require.Error(t, res.End())
	assert.True(t, ended(res))
	assert.ErrorIs(t, res.SetBody([]byte("more")), ErrResponseEnded)
}

func TestResponseTasks(t *testing.T) {
	var buf bytes.Buffer
	res := newTestResponse(&buf)

	out, err := Respond(StatusOK,
		[]Header{{Name: "Content-Type", Value: "text/plain"}, {Name: "Content-Length", Value: "5"}},
		[]byte("hello"), res).Run(context.Background())
	require.NoError(t, err)
	assert.Same(t, res, out)
	assert.True(t, ended(res))
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\r\n\r\nhello")))

	// A failing step stops the chain
	_, err = task.AndThen(SetBody([]byte("late"), res), EndResponse).Run(context.Background())
	assert.ErrorIs(t, err, ErrResponseEnded)
}

func TestResponseHTTP10(t *testing.T) {
	t.Run("Body Without Chunking", func(t *testing.T) {
		var buf bytes.Buffer
		res := newResponse(1, "HTTP/1.0", &buf, 0)
		res.now = func() time.Time { return fixedNow }

		require.NoError(t, res.SetBody([]byte("hel")))
		require.NoError(t, res.SetBody([]byte("lo")))
		require.NoError(t, res.End())
		assert.Equal(t, "HTTP/1.1 200 OK\r\n"+
			"Date: "+fixedDate+"\r\n"+
			"Connection: close\r\n"+
			"\r\n"+
			"hello", buf.String())
	})

	t.Run("Transfer-Encoding Dropped", func(t *testing.T) {
		var buf bytes.Buffer
		res := newResponse(1, "HTTP/1.0", &buf, 0)

		require.NoError(t, res.SetHeaders([]Header{{Name: "Transfer-Encoding", Value: "chunked"}}))
		require.NoError(t, res.SetBody([]byte("hello")))
		require.NoError(t, res.End())
		assert.NotContains(t, buf.String(), "Transfer-Encoding")
		assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\r\n\r\nhello")))
	})

	t.Run("Empty Body", func(t *testing.T) {
		var buf bytes.Buffer
		res := newResponse(1, "HTTP/1.0", &buf, 0)
		require.NoError(t, res.End())
		assert.Contains(t, buf.String(), "Content-Length: 0\r\n")
	})
}

func TestResponseRejectsInvalidHeaders(t *testing.T) {
	cases := []Header{
		{Name: "X-Echo", Value: "a\r\nSet-Cookie: pwned=1"},
		{Name: "X-Echo", Value: "a\nb"},
		{Name: "X-Echo", Value: "a\x00b"},
		{Name: "Bad Name", Value: "v"},
		{Name: "X-Split\r\nInjected", Value: "v"},
		{Name: "", Value: "v"},
	}
	for _, h := range cases {
		var buf bytes.Buffer
		res := newTestResponse(&buf)

		err := res.SetHeaders([]Header{{Name: "X-Ok", Value: "1"}, h})
		require.ErrorIs(t, err, ErrInvalidResponseHeader, "%q", h)
		assert.Empty(t, res.Headers(), "no field applied for %q", h)

		require.NoError(t, res.End())
		assert.NotContains(t, buf.String(), "Set-Cookie")
		assert.NotContains(t, buf.String(), "Injected")
	}

	// Values may carry tabs and visible characters
	var buf bytes.Buffer
	res := newTestResponse(&buf)
	require.NoError(t, res.SetHeaders([]Header{{Name: "X-Tab", Value: "a\tb"}}))
}

func TestResponseWriteDeadline(t *testing.T) {
	w := &deadlineWriter{}
	res := newResponse(1, "HTTP/1.1", w, 5*time.Second)
	res.now = func() time.Time { return fixedNow }

	require.NoError(t, res.SetBody([]byte("hi")))
	require.NoError(t, res.End())

	// head, one chunk and the terminating chunk
	require.Len(t, w.deadlines, 3)
	for _, d := range w.deadlines {
		assert.Equal(t, fixedNow.Add(5*time.Second), d)
	}

	w = &deadlineWriter{}
	res = newResponse(1, "HTTP/1.1", w, 0)
	require.NoError(t, res.End())
	assert.Empty(t, w.deadlines)
}
