package h1

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"

	"github.com/dbracia/celox/internal/proxyproto"
)

// Config defines the configuration options for the HTTP/1.1 server.
type Config struct {
	Addr           string
	Multicore      bool
	NumEventLoop   int
	ReusePort      bool
	Logger         *log.Logger
	MaxConnections uint32
	MaxBodyBytes   int64
	ProxyProtocol  bool
}

// Server implements gnet.EventHandler for HTTP/1.1.
type Server struct {
	gnet.BuiltinEventEngine
	handler        Handler
	ctx            context.Context
	cancel         context.CancelFunc
	logger         *log.Logger
	addr           string
	multicore      bool
	numEventLoop   int
	reusePort      bool
	maxConnections uint32
	maxBodyBytes   int64
	proxyProtocol  bool
	activeConns    atomic.Uint32
	engine         gnet.Engine
	engineStarted  bool
}

// NewServer creates a new HTTP/1.1 server.
func NewServer(ctx context.Context, handler Handler, config Config) *Server {
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		handler:        handler,
		ctx:            serverCtx,
		cancel:         cancel,
		logger:         config.Logger,
		addr:           config.Addr,
		multicore:      config.Multicore,
		numEventLoop:   config.NumEventLoop,
		reusePort:      config.ReusePort,
		maxConnections: config.MaxConnections,
		maxBodyBytes:   config.MaxBodyBytes,
		proxyProtocol:  config.ProxyProtocol,
	}
}

// Start launches the gnet event loop in a background goroutine.
func (s *Server) Start() error {
	options := []gnet.Option{
		gnet.WithMulticore(s.multicore),
		gnet.WithReusePort(s.reusePort),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithTCPKeepAlive(time.Minute * 5),
		gnet.WithLogger(silentGnetLogger{}),
		gnet.WithReadBufferCap(256 << 10),
		gnet.WithWriteBufferCap(256 << 10),
		gnet.WithLoadBalancing(gnet.RoundRobin),
	}
	if s.numEventLoop > 0 {
		options = append(options, gnet.WithNumEventLoop(s.numEventLoop))
	}

	s.logger.Printf("HTTP/1.1 server listening on %s (multicore: %v)", s.addr, s.multicore)

	go func() {
		_ = gnet.Run(s, "tcp://"+s.addr, options...)
	}()

	s.engineStarted = true
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	if s.engineStarted {
		stopCtx, stopCancel := context.WithTimeout(ctx, 2*time.Second)
		defer stopCancel()
		if err := s.engine.Stop(stopCtx); err != nil {
			s.logger.Printf("error stopping gnet engine: %v", err)
			return err
		}
	}
	return nil
}

// OnBoot is called when the server is ready to accept connections.
func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	s.engineStarted = true
	return gnet.None
}

// OnShutdown is called when the server is shutting down.
func (s *Server) OnShutdown(_ gnet.Engine) {
	s.engineStarted = false
}

// OnOpen is called when a new connection is opened.
func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	if s.maxConnections > 0 && s.activeConns.Load() >= s.maxConnections {
		s.logger.Printf("connection rejected from %s: too many connections", c.RemoteAddr())
		_ = c.AsyncWrite(rawResponse503, func(_ gnet.Conn, _ error) error {
			return c.Close()
		})
		return nil, gnet.None
	}
	s.activeConns.Add(1)

	var proxy *proxyproto.Parser
	if s.proxyProtocol {
		proxy = proxyproto.NewParser()
	}
	conn := NewConnection(s.ctx, c, s.handler, s.logger, proxy, s.maxBodyBytes)
	c.SetContext(conn)
	return nil, gnet.None
}

// OnClose is called when a connection is closed.
func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	// Connections rejected in OnOpen carry no context and were never counted.
	if _, ok := c.Context().(*Connection); ok {
		s.activeConns.Add(^uint32(0))
	}
	if err != nil {
		s.logger.Printf("connection from %s closed: %v", c.RemoteAddr(), err)
	}
	return gnet.None
}

// OnTraffic is called when data is received on a connection.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	conn, ok := c.Context().(*Connection)
	if !ok {
		s.logger.Printf("connection context missing")
		return gnet.Close
	}

	buf, err := c.Next(-1)
	if err != nil {
		s.logger.Printf("error reading data: %v", err)
		return gnet.Close
	}
	if len(buf) == 0 {
		return gnet.None
	}

	if err := conn.HandleData(buf); err != nil {
		if !errors.Is(err, errCloseConn) {
			s.logger.Printf("error handling data: %v", err)
		}
		return gnet.Close
	}
	return gnet.None
}

var rawResponse503 = []byte("HTTP/1.1 503 Service Unavailable\r\n" +
	"content-type: text/plain\r\n" +
	"content-length: 19\r\n" +
	"connection: close\r\n" +
	"\r\n" +
	"Service Unavailable")

// silentGnetLogger discards all gnet output.
type silentGnetLogger struct{}

func (silentGnetLogger) Debugf(_ string, _ ...any) {}
func (silentGnetLogger) Infof(_ string, _ ...any)  {}
func (silentGnetLogger) Warnf(_ string, _ ...any)  {}
func (silentGnetLogger) Errorf(_ string, _ ...any) {}
func (silentGnetLogger) Fatalf(_ string, _ ...any) {}
