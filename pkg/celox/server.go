package celox

import (
	"bytes"
	"context"
	"errors"

	"github.com/dbracia/celox/internal/date"
	"github.com/dbracia/celox/internal/h1"
)

// Server is the public entry point: it owns the transport and dispatches
// parsed requests through a Router.
type Server struct {
	config   Config
	router   *Router
	h1       *h1.Server
	stopDate func()
	done     chan struct{}
}

// New creates a server with the given configuration.
func New(config Config) *Server {
	_ = config.Validate()
	return &Server{
		config: config,
		done:   make(chan struct{}),
	}
}

// ListenAndServe starts serving router on the configured address. It
// blocks until Stop is called.
func (s *Server) ListenAndServe(router *Router) error {
	if router == nil {
		return errors.New("celox: nil router")
	}
	s.router = router
	s.stopDate = date.StartTicker()

	s.h1 = h1.NewServer(context.Background(), s, h1.Config{
		Addr:           s.config.Addr,
		Multicore:      s.config.Multicore,
		NumEventLoop:   s.config.NumEventLoop,
		ReusePort:      s.config.ReusePort,
		Logger:         s.config.Logger,
		MaxConnections: s.config.MaxConnections,
		MaxBodyBytes:   s.config.MaxBodyBytes,
		ProxyProtocol:  s.config.ProxyProtocol,
	})
	if err := s.h1.Start(); err != nil {
		return err
	}

	<-s.done
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.h1 != nil {
		err = s.h1.Stop(ctx)
	}
	if s.stopDate != nil {
		s.stopDate()
		s.stopDate = nil
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return err
}

// Inspect implements h1.Handler. It runs while the zero-copy request view
// is live: the route is resolved against the raw path bytes and the
// parameter views are installed on the view before being copied for the
// dispatch phase.
func (s *Server) Inspect(req *h1.Request) (any, [][2]string) {
	// The view exposes the target verbatim, so when the request line has
	// no query string the HTTP-version token trails the path; routing
	// works on the path alone.
	path := req.URL()
	if sp := bytes.LastIndexByte(path, ' '); sp >= 0 {
		path = path[:sp]
	}
	handler, names, values := s.router.lookup(string(req.Method()), path)
	if handler == nil {
		return nil, nil
	}
	req.SetParameters(values)

	var params [][2]string
	if len(names) > 0 {
		params = make([][2]string, len(names))
		for i := range names {
			params[i] = [2]string{names[i], string(values[i])}
		}
	}
	return handler, params
}

// Handle implements h1.Handler: it builds the request context, runs the
// router's middleware chain and flushes the buffered response.
func (s *Server) Handle(ctx context.Context, info *h1.RequestInfo, body []byte, w *h1.ResponseWriter) error {
	c := newContext(ctx, info, body, func(status int, headers [][2]string, b []byte) error {
		return w.WriteResponse(status, headers, b, true)
	})

	dispatchErr := s.router.Dispatch(c)
	flushErr := c.flush()
	if dispatchErr != nil {
		return dispatchErr
	}
	return flushErr
}
