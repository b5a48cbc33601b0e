// Package ipc is the local channel between the agentbridge CLI and a running
// "agentbridge serve": a Unix domain socket, or a named pipe on Windows.
// The control gRPC API is served over it without TLS or a token; access is
// restricted by the OS.
package ipc

import (
	"context"
	"net"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// EnvSocket overrides the socket path or pipe name.
const EnvSocket = "AGENTBRIDGE_SOCKET"

// SocketPath returns the platform-appropriate path for the IPC endpoint.
//
//   - Linux / macOS: $XDG_RUNTIME_DIR/agentbridge.sock, else $TMPDIR/agentbridge.sock
//   - Windows:       \\.\pipe\agentbridge
func SocketPath() string {
	if s := os.Getenv(EnvSocket); s != "" {
		return s
	}
	return socketPath()
}

// Listen creates a listener on the IPC endpoint, replacing a stale socket
// left by a crashed server.
func Listen() (net.Listener, error) {
	return listenIPC(SocketPath())
}

// Dial connects to the IPC endpoint.
func Dial(ctx context.Context) (net.Conn, error) {
	return dialIPC(ctx, SocketPath())
}

// IsRunning reports whether a server appears to be listening. It does a
// cheap dial-and-close; no data is exchanged.
func IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// NewClient returns a gRPC client connection over the IPC endpoint.
func NewClient(opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return Dial(ctx)
		}),
	}, opts...)
	return grpc.NewClient("passthrough:///agentbridge", opts...)
}
