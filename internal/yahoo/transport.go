package yahoo

import (
	"net"
	"net/http"
	"time"
)

// PoolConfig bounds outbound connections for callers that issue overlapping
// requests from several goroutines.
type PoolConfig struct {
	// Size is the number of connections kept per host.
	Size int
	// Block caps open connections per host at Size; further requests wait
	// for a free connection instead of dialing a new one.
	Block bool
}

// DefaultPool returns a small non-blocking pool.
func DefaultPool() PoolConfig {
	return PoolConfig{Size: 10}
}

// NewHTTPClient creates an HTTP client whose transport honours pool.
// The per-request timeout is applied by Client.Fetch; timeout here is an
// upper bound for the whole exchange and may be zero.
func NewHTTPClient(pool PoolConfig, timeout time.Duration) *http.Client {
	size := pool.Size
	if size <= 0 {
		size = DefaultPool().Size
	}
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          size * 2,
		MaxIdleConnsPerHost:   size,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if pool.Block {
		t.MaxConnsPerHost = size
	}
	return &http.Client{Timeout: timeout, Transport: t}
}
