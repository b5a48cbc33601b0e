package control

import (
	"context"

	"google.golang.org/grpc"
)

// Client is the client side of the control API.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc. Every call is sent with the JSON content subtype.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *Client) Send(ctx context.Context, in *SendRequest, opts ...grpc.CallOption) (*SendResponse, error) {
	out := new(SendResponse)
	if err := c.cc.Invoke(ctx, fullMethod("Send"), in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Workspace(ctx context.Context, in *WorkspaceRequest, opts ...grpc.CallOption) (*WorkspaceResponse, error) {
	out := new(WorkspaceResponse)
	if err := c.cc.Invoke(ctx, fullMethod("Workspace"), in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SelectProvider(ctx context.Context, in *SelectProviderRequest, opts ...grpc.CallOption) (*SelectProviderResponse, error) {
	out := new(SelectProviderResponse)
	if err := c.cc.Invoke(ctx, fullMethod("SelectProvider"), in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Available(ctx context.Context, in *AvailableRequest, opts ...grpc.CallOption) (*AvailableResponse, error) {
	out := new(AvailableResponse)
	if err := c.cc.Invoke(ctx, fullMethod("Available"), in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, fullMethod("Status"), in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// Watch opens a status stream. Cancel ctx to end it.
func (c *Client) Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (*WatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], fullMethod("Watch"), callOpts(opts)...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchClient{stream: stream}, nil
}

// WatchClient receives status updates.
type WatchClient struct {
	stream grpc.ClientStream
}

// Recv blocks for the next update.
func (w *WatchClient) Recv() (*StatusResponse, error) {
	m := new(StatusResponse)
	if err := w.stream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// BearerToken sends token as per-RPC authorization metadata.
type BearerToken string

func (t BearerToken) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	if t == "" {
		return nil, nil
	}
	return map[string]string{"authorization": "Bearer " + string(t)}, nil
}

func (BearerToken) RequireTransportSecurity() bool { return false }
