// Package httpclient builds the HTTP transports used to reach the search
// engine: a pooled base transport and a circuit breaker around it.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// Config holds HTTP transport configuration
type Config struct {
	DialTimeout         time.Duration
	ResponseTimeout     time.Duration
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the engine transport
func DefaultConfig() Config {
	return Config{
		DialTimeout:         10 * time.Second,
		ResponseTimeout:     30 * time.Second,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// NewTransport creates a pooled transport. Long scroll and bulk calls share
// connections with searches.
func NewTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
