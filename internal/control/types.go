package control

import (
	"context"

	"go.klb.dev/agentbridge/internal/baseline"
	"go.klb.dev/agentbridge/internal/provider"
)

// SendRequest delivers a prompt, with optional attachment paths listed ahead
// of it.
type SendRequest struct {
	Prompt      string   `json:"prompt"`
	Attachments []string `json:"attachments,omitempty"`
}

// SendResponse names the provider whose gestures were used ("shell" for none).
type SendResponse struct {
	Provider string `json:"provider"`
}

// WorkspaceRequest reports a workspace directory change.
type WorkspaceRequest struct {
	Dir        string `json:"dir"`
	ForceReset bool   `json:"force_reset,omitempty"`
}

// WorkspaceResponse carries the coordinator state after the change.
type WorkspaceResponse struct {
	State   string `json:"state"`
	Running string `json:"running"`
}

// SelectProviderRequest picks the provider for the next (re)start.
type SelectProviderRequest struct {
	Provider string `json:"provider"`
}

// SelectProviderResponse is the outcome of a selection.
type SelectProviderResponse struct {
	Selected string `json:"selected"`
	Running  string `json:"running"`
	State    string `json:"state"`
}

// AvailableRequest asks about one provider, or all when Provider is empty.
type AvailableRequest struct {
	Provider string `json:"provider,omitempty"`
}

// AvailableResponse lists provider availability.
type AvailableResponse struct {
	Providers []ProviderInfo `json:"providers"`
}

// ProviderInfo describes one provider.
type ProviderInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Available   bool   `json:"available"`
	Compat      bool   `json:"compat,omitempty"`
	Paste       string `json:"paste"`
	Submit      string `json:"submit"`
	InstallHint string `json:"install_hint,omitempty"`
}

// StatusRequest is empty.
type StatusRequest struct{}

// StatusResponse is a snapshot of the bridge.
type StatusResponse struct {
	Version  string            `json:"version,omitempty"`
	Selected string            `json:"selected"`
	Running  string            `json:"running"`
	State    string            `json:"state"`
	Window   uint64            `json:"window"`
	Dir      string            `json:"dir,omitempty"`
	Title    string            `json:"title"`
	Busy     bool              `json:"busy"`
	Changes  []baseline.Change `json:"changes,omitempty"`
}

// WatchRequest subscribes to session changes.
type WatchRequest struct{}

// ControlServer is implemented by *Service.
type ControlServer interface {
	Send(context.Context, *SendRequest) (*SendResponse, error)
	Workspace(context.Context, *WorkspaceRequest) (*WorkspaceResponse, error)
	SelectProvider(context.Context, *SelectProviderRequest) (*SelectProviderResponse, error)
	Available(context.Context, *AvailableRequest) (*AvailableResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Watch(*WatchRequest, WatchStream) error
}

// WatchStream is the server side of Watch.
type WatchStream interface {
	Send(*StatusResponse) error
	Context() context.Context
}

func providerInfo(id provider.ID, available bool) ProviderInfo {
	proto := provider.ResolveGesture(&id)
	info := ProviderInfo{
		Name:        id.String(),
		DisplayName: id.DisplayName(),
		Available:   available,
		Compat:      id.Compat(),
		Paste:       proto.Paste.String(),
		Submit:      proto.Submit.String(),
	}
	if !available {
		info.InstallHint = id.InstallHint()
	}
	return info
}
