// Package control exposes the bridge over gRPC: prompt delivery, workspace
// changes, provider selection and status. Messages are JSON (content subtype
// "json") so no generated stubs are needed.
package control

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"go.klb.dev/agentbridge/internal/attach"
	"go.klb.dev/agentbridge/internal/baseline"
	"go.klb.dev/agentbridge/internal/delivery"
	"go.klb.dev/agentbridge/internal/provider"
	"go.klb.dev/agentbridge/internal/session"
	"go.klb.dev/agentbridge/internal/workspace"
)

// Sender delivers prompts. *delivery.Pipeline implements it.
type Sender interface {
	SendPrompt(text string, set *attach.Set) error
	Busy() bool
}

// Coordinator drives console restarts. *workspace.Coordinator implements it.
type Coordinator interface {
	OnWorkspaceDirectoryChanged(ctx context.Context, dir string, forceReset bool) error
	SelectProvider(ctx context.Context, id provider.ID) error
	IsProviderAvailable(ctx context.Context, id provider.ID) bool
	State() workspace.State
}

// Backend is everything the service drives. Changes may be nil.
type Backend struct {
	Session        *session.Session
	Sender         Sender
	Coordinator    Coordinator
	Changes        func() []baseline.Change
	MaxAttachments int
	Version        string
}

// Service implements ControlServer.
type Service struct {
	b     Backend
	token string // empty = no auth
}

// New returns a Service over b. token may be empty to disable auth, which is
// what the local IPC listener does.
func New(b Backend, token string) *Service {
	return &Service{b: b, token: token}
}

// Send implements Control.Send.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	set := attach.NewSet(s.b.MaxAttachments)
	for _, p := range req.Attachments {
		if !set.Add(p) {
			return nil, status.Errorf(codes.InvalidArgument, "too many attachments (max %d)", set.Max())
		}
	}
	running := s.b.Session.Running()
	slog.Debug("send requested", "from", addrFromCtx(ctx), "attachments", set.Len(), "running", provider.Name(running))
	if err := s.b.Sender.SendPrompt(req.Prompt, set); err != nil {
		return nil, sendStatus(err)
	}
	return &SendResponse{Provider: provider.Name(running)}, nil
}

// Workspace implements Control.Workspace.
func (s *Service) Workspace(ctx context.Context, req *WorkspaceRequest) (*WorkspaceResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	if err := s.b.Coordinator.OnWorkspaceDirectoryChanged(ctx, req.Dir, req.ForceReset); err != nil {
		if errors.Is(err, workspace.ErrNoDirectory) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &WorkspaceResponse{
		State:   s.b.Coordinator.State().String(),
		Running: provider.Name(s.b.Session.Running()),
	}, nil
}

// SelectProvider implements Control.SelectProvider.
func (s *Service) SelectProvider(ctx context.Context, req *SelectProviderRequest) (*SelectProviderResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	id, err := provider.Parse(req.Provider)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.b.Coordinator.SelectProvider(ctx, id); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	snap := s.b.Session.Snapshot()
	return &SelectProviderResponse{
		Selected: snap.Selected.String(),
		Running:  provider.Name(snap.Running),
		State:    s.b.Coordinator.State().String(),
	}, nil
}

// Available implements Control.Available.
func (s *Service) Available(ctx context.Context, req *AvailableRequest) (*AvailableResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	ids := provider.All()
	if req.Provider != "" {
		id, err := provider.Parse(req.Provider)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		ids = []provider.ID{id}
	}
	resp := &AvailableResponse{Providers: make([]ProviderInfo, 0, len(ids))}
	for _, id := range ids {
		resp.Providers = append(resp.Providers, providerInfo(id, s.b.Coordinator.IsProviderAvailable(ctx, id)))
	}
	return resp, nil
}

// Status implements Control.Status.
func (s *Service) Status(ctx context.Context, _ *StatusRequest) (*StatusResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	return s.status(s.b.Session.Snapshot()), nil
}

// Watch implements Control.Watch: the current status, then one message per
// session change until the client goes away.
func (s *Service) Watch(_ *WatchRequest, stream WatchStream) error {
	ctx := stream.Context()
	if err := s.auth(ctx); err != nil {
		return err
	}

	ch := make(chan session.Snapshot, 16)
	cancel := s.b.Session.Subscribe(func(snap session.Snapshot) {
		select {
		case ch <- snap:
		default:
			slog.Warn("watch subscriber lagging, dropping update", "peer", addrFromCtx(ctx))
		}
	})
	defer cancel()

	slog.Info("watch started", "peer", addrFromCtx(ctx))
	if err := stream.Send(s.status(s.b.Session.Snapshot())); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-ch:
			if err := stream.Send(s.status(snap)); err != nil {
				return err
			}
		}
	}
}

func (s *Service) status(snap session.Snapshot) *StatusResponse {
	resp := &StatusResponse{
		Version:  s.b.Version,
		Selected: snap.Selected.String(),
		Running:  provider.Name(snap.Running),
		State:    s.b.Coordinator.State().String(),
		Window:   uint64(snap.Window),
		Dir:      snap.Dir,
		Title:    snap.Title(),
		Busy:     s.b.Sender.Busy(),
	}
	if s.b.Changes != nil {
		resp.Changes = s.b.Changes()
	}
	return resp
}

// sendStatus maps delivery failures onto gRPC codes.
func sendStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, delivery.ErrBusy):
		code = codes.ResourceExhausted
	case errors.Is(err, delivery.ErrEmptyPrompt):
		code = codes.InvalidArgument
	case delivery.IsKind(err, delivery.TerminalUnavailable):
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// auth validates the bearer token in ctx metadata. Skipped when s.token is empty.
func (s *Service) auth(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}
	if !validBearer(vals[0], s.token) {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

func validBearer(header, token string) bool {
	tok, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		tok = header
	}
	return tok == token
}

func addrFromCtx(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
