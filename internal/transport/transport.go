// Package transport dials brokers over plain TCP or MQTT-over-WebSocket
// and hands back a net.Conn either way, so the rest of the bench never
// cares which one carries the bytes.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultWSPath is the conventional MQTT-over-WebSocket endpoint path.
const DefaultWSPath = "/mqtt"

// Dial opens a connection to addr (host:port) using the named scheme:
// "tcp" (also the default for an empty scheme) or "ws". path applies
// only to WebSocket dials and defaults to DefaultWSPath.
func Dial(ctx context.Context, scheme, addr, path string, timeout time.Duration) (net.Conn, error) {
	switch scheme {
	case "", "tcp":
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial tcp %s: %w", addr, err)
		}
		return conn, nil

	case "ws":
		if path == "" {
			path = DefaultWSPath
		}
		u := url.URL{Scheme: "ws", Host: addr, Path: path}
		dialer := websocket.Dialer{
			HandshakeTimeout: timeout,
			Subprotocols:     []string{"mqtt"},
		}
		conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial ws %s: status %d: %w", u.String(), resp.StatusCode, err)
			}
			return nil, fmt.Errorf("dial ws %s: %w", u.String(), err)
		}
		return newWSConn(conn), nil

	default:
		return nil, fmt.Errorf("unsupported transport %q: use \"tcp\" or \"ws\"", scheme)
	}
}
