package session

import (
	"time"

	"github.com/rs/zerolog"
)

// Config defines connection and per-call deadline defaults.
type Config struct {
	// Address is the node's host:port. Only Dial reads it.
	Address string
	// AppID is stamped on every request this session writes.
	AppID          uint16
	ConnectTimeout time.Duration
	// ReadTimeout and WriteTimeout bound each header read or request write
	// when the ctx carries no deadline. Zero means no deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the client defaults. Reads and writes block until the
// node answers unless the caller sets a timeout or passes a ctx deadline.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	return c
}
