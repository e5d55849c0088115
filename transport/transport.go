// Package transport provides the byte-oriented connection abstraction
// higher layers (identity handshake, ecgsync) frame their own messages
// over, plus the bind-with-retry helper used when starting the server
// listener. Grounded on odyssey-core/src/core.rs's bind_server_ipv4 (a
// 10-port retry loop) and its use of tokio_util::codec::LengthDelimitedCodec.
// This package does no framing itself: length prefixes are written and
// read one layer up, by ecgsync's CBOR framing and identity's handshake
// frames.
package transport

import (
	"fmt"
	"net"

	"github.com/pkg/errors"

	"github.com/odyssey-sync/odyssey/log"
)

// Framed wraps a net.Conn; callers read and write using their own
// length-delimited framing on top (ecgsync.ReadRequest/WriteRequest and
// friends), keeping a dumb byte-oriented transport separate from
// protocol-specific message framing.
type Framed struct {
	net.Conn
}

// NewFramed wraps an already-established connection.
func NewFramed(conn net.Conn) *Framed {
	return &Framed{Conn: conn}
}

// Dial connects to address and wraps the resulting connection.
func Dial(address string) (*Framed, error) {
	conn, err := net.Dial("tcp4", address)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: dial %s", address)
	}
	return NewFramed(conn), nil
}

// maxBindRetries is how many successive ports BindIPv4Loopback tries
// before giving up, matching core.rs's bind_server_ipv4 loop bound.
const maxBindRetries = 10

// BindIPv4Loopback listens on 127.0.0.1:port; if that fails it moves on
// to the next higher port, trying at most maxBindRetries ports in all
// (port through port+9), grounded on core.rs's bind_server_ipv4.
func BindIPv4Loopback(port uint16, logger *log.Logger) (net.Listener, error) {
	if logger == nil {
		logger = log.Root()
	}
	var lastErr error
	for i := 0; i < maxBindRetries; i++ {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		ln, err := net.Listen("tcp4", addr)
		if err == nil {
			logger.Info("started server", "address", addr)
			return ln, nil
		}
		logger.Warn("failed to bind to port", "address", addr, "err", err)
		lastErr = err
		port++
	}
	return nil, errors.Wrapf(lastErr, "transport: failed to bind after %d attempts", maxBindRetries)
}
