package transport_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-sync/odyssey/transport"
)

func TestBindIPv4LoopbackRetriesOnConflict(t *testing.T) {
	blocker, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer blocker.Close()

	port := uint16(blocker.Addr().(*net.TCPAddr).Port)

	ln, err := transport.BindIPv4Loopback(port, nil)
	require.NoError(t, err)
	defer ln.Close()

	require.NotEqual(t, int(port), ln.Addr().(*net.TCPAddr).Port)
}

func TestDialAndAccept(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		require.NoError(t, err)
		accepted <- conn
	}()

	framed, err := transport.Dial(ln.Addr().String())
	require.NoError(t, err)
	defer framed.Close()

	conn := <-accepted
	defer conn.Close()

	msg := []byte("hello")
	go framed.Write(msg)

	buf := make([]byte, len(msg))
	_, err = conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, msg, buf)
}
