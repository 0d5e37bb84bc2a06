package celox

import (
	"io"
	"log"
	"time"
)

// Config holds the server configuration options.
type Config struct {
	Addr           string        // Server address to bind to
	Multicore      bool          // Enable multicore mode for better performance
	NumEventLoop   int           // Number of event loops (0 for auto-detect)
	ReusePort      bool          // Enable SO_REUSEPORT for load balancing
	ReadTimeout    time.Duration // Maximum duration for reading requests
	WriteTimeout   time.Duration // Maximum duration for writing responses
	IdleTimeout    time.Duration // Maximum idle time before connection close
	MaxConnections uint32        // Maximum concurrent connections (0 for unlimited)
	MaxBodyBytes   int64         // Maximum accumulated request body size
	ProxyProtocol  bool          // Expect a PROXY protocol preamble on new connections
	Logger         *log.Logger   // Logger for server events
}

// newSilentLogger creates a logger that discards all output.
func newSilentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		Multicore:      true,
		NumEventLoop:   0, // Auto-detect
		ReusePort:      true,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxConnections: 0,
		MaxBodyBytes:   4 << 20,
		ProxyProtocol:  false,
		Logger:         newSilentLogger(),
	}
}

// Validate checks and normalizes the configuration values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 4 << 20
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return nil
}
