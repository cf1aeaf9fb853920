package netutil

import (
	"context"
	"net"
	"strconv"

	"github.com/eleven-am/loom/internal/domain"
)

// Listen binds host:port over TCP. Port 0 lets the kernel pick a free port;
// Port reports which one.
func Listen(ctx context.Context, host string, port int) (net.Listener, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, domain.NewTransportError("listen", "failed to listen on "+addr, err)
	}
	return listener, nil
}

// Port returns the TCP port listener is bound to, or 0 for other networks.
func Port(listener net.Listener) int {
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
