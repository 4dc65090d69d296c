package binance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// HandshakeError is returned by Dial when the server answered the upgrade
// request with a non-101 status.
type HandshakeError struct {
	StatusCode int
	Body       string
}

func (e *HandshakeError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("binance/ws: handshake rejected with HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("binance/ws: handshake rejected with HTTP %d: %s", e.StatusCode, e.Body)
}

// StreamURL builds a combined-stream URL subscribing to the ticker stream of
// every symbol, e.g. wss://stream.binance.com:9443/stream?streams=btcusdt@ticker.
func StreamURL(base string, symbols []string) (string, error) {
	if len(symbols) == 0 {
		return "", errors.New("binance/ws: no symbols")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("binance/ws: parse stream url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("binance/ws: unsupported scheme %q", u.Scheme)
	}

	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(strings.TrimSpace(s))+"@ticker")
	}
	if !strings.HasSuffix(u.Path, "/stream") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/stream"
	}
	// Stream names contain '@' and '/', which Binance expects unescaped.
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// Dialer opens ticker stream connections.
type Dialer struct {
	url    string
	dialer websocket.Dialer
}

// NewDialer creates a Dialer for streamURL (see StreamURL).
func NewDialer(streamURL string, handshakeTimeout time.Duration) *Dialer {
	return &Dialer{
		url: streamURL,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// URL returns the stream URL the dialer connects to.
func (d *Dialer) URL() string { return d.url }

// Dial connects to the stream. A refused upgrade yields a *HandshakeError.
func (d *Dialer) Dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return nil, fmt.Errorf("binance/ws: connect: %w", err)
	}
	return conn, nil
}
