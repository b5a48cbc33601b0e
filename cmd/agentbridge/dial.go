package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"go.klb.dev/agentbridge/internal/control"
	"go.klb.dev/agentbridge/internal/ipc"
	"go.klb.dev/agentbridge/internal/tlsconf"
)

// conn is a control client and the transport it was reached over.
type conn struct {
	*control.Client
	cc        *grpc.ClientConn
	transport string
}

func (c *conn) Close() error { return c.cc.Close() }

// dialControl connects to the local bridge unless --server was given, in
// which case it connects over TLS with the identity derived from --token.
func dialControl(cmd *cobra.Command, v *viper.Viper) (*conn, error) {
	if !cmd.Flags().Changed("server") && ipc.IsRunning() {
		cc, err := ipc.NewClient()
		if err == nil {
			return &conn{Client: control.NewClient(cc), cc: cc, transport: fmt.Sprintf("ipc (%s)", ipc.SocketPath())}, nil
		}
	}

	addr := v.GetString("server")
	if addr == "" {
		return nil, errors.New("agentbridge is not running locally; start it with \"agentbridge serve\" or pass --server")
	}
	token := v.GetString("token")
	id, err := tlsconf.Derive(token)
	if err != nil {
		return nil, fmt.Errorf("tls credentials: %w", err)
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(id.ClientCredentials())}
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(control.BearerToken(token)))
	}
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &conn{Client: control.NewClient(cc), cc: cc, transport: fmt.Sprintf("tcp (%s)", addr)}, nil
}
