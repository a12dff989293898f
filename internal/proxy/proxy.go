// Package proxy dials outbound TCP connections directly or tunneled through
// a single optional SOCKS5 proxy, for use by the SMTP prober. Concurrent
// proxied dials from this process are bounded by a plain connection-count
// semaphore.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	netproxy "golang.org/x/net/proxy"
)

// Config describes a SOCKS5 proxy, mirroring the input record's proxy field.
type Config struct {
	Host     string `json:"host"`
	Port     uint16 `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

func (c *Config) url() *url.URL {
	u := &url.URL{
		Scheme: "socks5",
		Host:   net.JoinHostPort(c.Host, fmt.Sprint(c.Port)),
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u
}

// maxConcurrentDials bounds how many proxied connections this process opens
// at once, regardless of how many distinct proxy configs are in flight.
const maxConcurrentDials = 50

var semaphore = make(chan struct{}, maxConcurrentDials)

// proxyConn releases its semaphore slot exactly once, on Close.
type proxyConn struct {
	net.Conn
	releaseOnce sync.Once
}

func (pc *proxyConn) Close() error {
	pc.releaseOnce.Do(func() { <-semaphore })
	return pc.Conn.Close()
}

// DialContext dials addr directly if cfg is nil, or tunnels the connection
// through cfg's SOCKS5 proxy otherwise.
func DialContext(ctx context.Context, addr string, timeout time.Duration, cfg *Config) (net.Conn, error) {
	direct := &net.Dialer{Timeout: timeout}

	if cfg == nil {
		return direct.DialContext(ctx, "tcp", addr)
	}

	select {
	case semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("timeout waiting for proxy slot: %w", ctx.Err())
	}

	dialer, err := netproxy.FromURL(cfg.url(), direct)
	if err != nil {
		<-semaphore
		return nil, fmt.Errorf("invalid proxy config: %w", err)
	}

	var conn net.Conn
	if cd, ok := dialer.(netproxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		<-semaphore
		return nil, fmt.Errorf("proxy dial failed: %w", err)
	}

	return &proxyConn{Conn: conn}, nil
}
