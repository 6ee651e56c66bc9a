package http

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lieberdev/hostd/internal/task"
	"github.com/rs/zerolog"
)

const (
	defaultMaxBodyBytes   = 10 << 20
	defaultMaxHeaderBytes = 1 << 20
	defaultReadTimeout    = 30 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultGracePeriod    = 3 * time.Second
	acceptRetryDelay      = 50 * time.Millisecond
	lingerTimeout         = 500 * time.Millisecond
	maxLingerBytes        = 256 << 10
)

// Handler receives every fully read request together with its Response.
// The returned task is run by the server; it may be nil when the response
// is completed some other way.
type Handler func(req *Request, res *Response) task.Task[*Response]

// Options tune per-connection limits. Zero limits and timeouts disable them.
type Options struct {
	MaxBodyBytes   int64
	MaxHeaderBytes int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	GracePeriod    time.Duration
	Logger         *zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		MaxBodyBytes:   defaultMaxBodyBytes,
		MaxHeaderBytes: defaultMaxHeaderBytes,
		ReadTimeout:    defaultReadTimeout,
		WriteTimeout:   defaultWriteTimeout,
		GracePeriod:    defaultGracePeriod,
	}
}

type Server struct {
	Listener net.Listener

	opts       Options
	log        zerolog.Logger
	handler    atomic.Pointer[Handler]
	closed     atomic.Bool
	nextID     atomic.Uint64
	conns      sync.Map // ConnID -> *connection
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	acceptDone chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

// Create binds and listens on host:port and starts accepting connections.
// A failed bind is returned as *ServerError and is never retried here.
func Create(ctx context.Context, host string, port int, opts Options) (*Server, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, newServerError(err)
	}

	if opts.GracePeriod <= 0 {
		opts.GracePeriod = defaultGracePeriod
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	srvCtx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		Listener:   ln,
		opts:       opts,
		log:        logger,
		ctx:        srvCtx,
		cancel:     cancel,
		acceptDone: make(chan struct{}),
	}
	srv.log.Info().Str("address", ln.Addr().String()).Msg("Server listening")

	go srv.serve()
	return srv, nil
}

// AddListener makes h the only handler for new requests, replacing any
// previous one.
func (s *Server) AddListener(h Handler) {
	if h == nil {
		s.RemoveAllListeners()
		return
	}
	s.handler.Store(&h)
}

// RemoveAllListeners detaches the handler. Requests completed afterwards are
// dropped and their connections closed.
func (s *Server) RemoveAllListeners() {
	s.handler.Store(nil)
}

func (s *Server) Addr() net.Addr {
	return s.Listener.Addr()
}

// Port returns the bound TCP port, which differs from the requested one
// when the server was created with port 0.
func (s *Server) Port() int {
	if addr, ok := s.Listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

func (s *Server) serve() {
	defer close(s.acceptDone)
	for {
		conn, err := s.Listener.Accept()
		if s.closed.Load() {
			if conn != nil {
				conn.Close()
			}
			return // Graceful exit
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error().Err(err).Msg("Accept failed")
			time.Sleep(acceptRetryDelay)
			continue
		}

		c := newConnection(s, ConnID(s.nextID.Add(1)), conn)
		s.track(c)
		go c.serve()
	}
}

func (s *Server) track(c *connection) {
	s.wg.Add(1)
	s.conns.Store(c.id, c)
}

func (s *Server) untrack(c *connection) {
	s.conns.Delete(c.id)
	s.wg.Done()
}

// ActiveConnections returns the number of connections currently served.
func (s *Server) ActiveConnections() int {
	n := 0
	s.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close stops accepting connections and waits for live ones to finish until
// ctx is done or the grace period runs out. Remaining connections are then
// closed. Calling Close more than once returns the first result.
func (s *Server) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.Listener.Close()
		<-s.acceptDone

		finished := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(finished)
		}()

		timer := time.NewTimer(s.opts.GracePeriod)
		defer timer.Stop()
		select {
		case <-finished:
		case <-ctx.Done():
			s.forceClose()
		case <-timer.C:
			s.log.Warn().Int("connections", s.ActiveConnections()).Msg("Grace period exceeded, closing connections")
			s.forceClose()
		}
		s.cancel()
		s.log.Info().Msg("Server closed")
	})
	return s.closeErr
}

func (s *Server) forceClose() {
	s.cancel()
	s.conns.Range(func(_, v any) bool {
		v.(*connection).rwc.Close()
		return true
	})
}
