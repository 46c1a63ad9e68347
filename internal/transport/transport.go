// Package transport builds the HTTP round trippers used for storefront calls.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Options selects the storefront transport.
type Options struct {
	Timeout time.Duration

	// ChromeTLS presents a browser TLS fingerprint. Some storefront CDNs
	// throttle Go's default ClientHello.
	ChromeTLS bool

	// MaxIdleConnsPerHost keeps connections warm across widget sessions.
	MaxIdleConnsPerHost int
}

// New returns the round tripper described by opts.
func New(opts Options) http.RoundTripper {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ChromeTLS {
		return NewChromeTransport(opts.Timeout)
	}

	idle := opts.MaxIdleConnsPerHost
	if idle <= 0 {
		idle = 16
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: opts.Timeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = opts.Timeout
	t.MaxIdleConnsPerHost = idle
	return t
}

// =============================================================================
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// uTLS with HelloChrome_Auto supplies the ClientHello; ALPN picks h2 or
// http/1.1 and the matching Go transport does the framing.
// =============================================================================

// NewChromeTransport creates an http.RoundTripper with Chrome's TLS
// fingerprint, speaking HTTP/2 when the server negotiates it.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			conn, err := dialChromeTLS(ctx, dialer, network, addr)
			if err != nil {
				return nil, err
			}
			if proto := conn.ConnectionState().NegotiatedProtocol; proto != http2.NextProtoTLS {
				conn.Close()
				return nil, fmt.Errorf("%w: server chose %q", errNoH2, proto)
			}
			return conn, nil
		},
	}

	h1Transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialChromeTLS(ctx, dialer, network, addr)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		ForceAttemptHTTP2: false,
	}

	return &chromeTransport{h2: h2Transport, h1: h1Transport}
}

// errNoH2 means ALPN did not select h2. Nothing was written to the server.
var errNoH2 = errors.New("transport: h2 not negotiated")

type chromeTransport struct {
	h2 http.RoundTripper
	h1 http.RoundTripper

	// hosts known to refuse h2 skip straight to HTTP/1.1
	h1Hosts sync.Map
}

// RoundTrip speaks HTTP/2 and falls back to HTTP/1.1 only when the server
// did not negotiate h2. Any other failure is returned as is: the request may
// have reached the server and is not replayed.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, ok := t.h1Hosts.Load(req.URL.Host); ok {
		return t.h1.RoundTrip(req)
	}
	resp, err := t.h2.RoundTrip(req)
	if err == nil || !errors.Is(err, errNoH2) {
		return resp, err
	}
	t.h1Hosts.Store(req.URL.Host, struct{}{})
	return t.h1.RoundTrip(req)
}

func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (*utls.UConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
