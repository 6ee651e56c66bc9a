package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// connection owns one accepted socket until its request has been read and
// dispatched. From then on the socket is written only through the Response.
type connection struct {
	id     ConnID
	srv    *Server
	rwc    net.Conn
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
	body   []byte
}

func newConnection(srv *Server, id ConnID, rwc net.Conn) *connection {
	ctx, cancel := context.WithCancel(srv.ctx)
	return &connection{
		id:     id,
		srv:    srv,
		rwc:    rwc,
		ctx:    ctx,
		cancel: cancel,
		log: srv.log.With().
			Uint64("conn_id", uint64(id)).
			Str("remote", rwc.RemoteAddr().String()).
			Logger(),
	}
}

func (c *connection) serve() {
	defer c.srv.untrack(c)
	defer c.rwc.Close()
	defer c.cancel()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("Handler panicked")
		}
	}()

	if c.srv.opts.ReadTimeout > 0 {
		c.rwc.SetReadDeadline(time.Now().Add(c.srv.opts.ReadTimeout))
	}
	req, err := c.readRequest()
	if err != nil {
		c.abort(err)
		return
	}
	c.rwc.SetReadDeadline(time.Time{})

	h := c.srv.handler.Load()
	if h == nil {
		c.log.Debug().Msg("No listener registered, dropping request")
		return
	}
	c.dispatch(*h, req, newResponse(c.id, req.Proto, c.rwc, c.srv.opts.WriteTimeout))
}

// onData appends one body chunk to the request body.
func (c *connection) onData(p []byte) error {
	limit := c.srv.opts.MaxBodyBytes
	if limit > 0 && int64(len(c.body))+int64(len(p)) > limit {
		return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, limit)
	}
	c.body = append(c.body, p...)
	return nil
}

func (c *connection) readRequest() (*Request, error) {
	p, err := readRequest(c.rwc, c.srv.opts.MaxHeaderBytes, c.onData)
	if err != nil {
		c.body = nil
		return nil, err
	}

	body := c.body
	c.body = nil
	req, err := Decode(p.line.Target, p.headers, p.line.Method, body, c.rwc.LocalAddr().String())
	if err != nil {
		return nil, err
	}
	req.ConnID = c.id
	req.Proto = p.line.Version
	return req, nil
}

// abort drops a connection whose request could not be read. Protocol errors
// get a bare error response; transport failures are only logged.
func (c *connection) abort(err error) {
	if errors.Is(err, io.EOF) {
		c.log.Debug().Msg("Connection closed before sending a request")
		return
	}

	var netErr net.Error
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &netErr) || errors.Is(err, net.ErrClosed) {
		c.log.Debug().Err(err).Msg("Connection aborted while reading request")
		return
	}

	c.log.Debug().Err(err).Msg("Rejecting malformed request")
	sc := badRequestStatus(err)
	msg := []byte(err.Error() + "\n")
	res := newResponse(c.id, "", c.rwc, c.srv.opts.WriteTimeout)
	res.SetStatus(sc)
	res.SetHeaders([]Header{
		{Name: "Content-Type", Value: "text/plain"},
		{Name: "Content-Length", Value: strconv.Itoa(len(msg))},
	})
	if err := res.SetBody(msg); err != nil {
		c.log.Debug().Err(err).Msg("Failed to write error response")
	}
	res.End()
	c.linger()
}

// linger half-closes the socket and discards what the peer is still sending
// for a short while, so the error response is not lost to a reset.
func (c *connection) linger() {
	cw, ok := c.rwc.(interface{ CloseWrite() error })
	if !ok {
		return
	}
	if err := cw.CloseWrite(); err != nil {
		return
	}
	c.rwc.SetReadDeadline(time.Now().Add(lingerTimeout))
	io.Copy(io.Discard, io.LimitReader(c.rwc, maxLingerBytes))
}

// dispatch hands the request to the handler, runs the returned task and
// keeps the connection open until the response ends or the server shuts down.
func (c *connection) dispatch(h Handler, req *Request, res *Response) {
	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("body_bytes", len(req.Body)).
		Msg("Dispatching request")

	if t := h(req, res); t != nil {
		if _, err := t.Run(c.ctx); err != nil {
			c.log.Warn().Err(err).Msg("Response task failed")
			if !res.HeadersSent() {
				res.SetStatus(StatusInternalServerError)
			}
			res.End()
		}
	}

	select {
	case <-res.Done():
		c.log.Debug().Int("status", int(res.Status())).Int64("body_bytes", res.BodyBytes()).Msg("Response ended")
	case <-c.ctx.Done():
		c.log.Debug().Msg("Connection cancelled before response ended")
	}
}
