// Package settings is the persistent configuration of agentbridge: the
// selected provider, attachment and timing tunables, and the
// "install instructions shown" flags.
//
// Values resolve through one viper instance. Precedence (lowest → highest):
// defaults → config file → AGENTBRIDGE_* env vars → flags bound by the caller.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"go.klb.dev/agentbridge/internal/attach"
	"go.klb.dev/agentbridge/internal/delivery"
	"go.klb.dev/agentbridge/internal/inject"
	"go.klb.dev/agentbridge/internal/provider"
)

// Config file and environment naming.
const (
	AppName   = "agentbridge"
	EnvPrefix = "AGENTBRIDGE"
)

// Keys.
const (
	KeyProvider        = "provider"
	KeyAttachmentsMax  = "attachments.max"
	KeyEnterRepeat     = "enter_repeat"
	KeyNotified        = "notified"
	KeyClipboardSettle = "timing.clipboard_settle"
	KeyFocusSettle     = "timing.focus_settle"
	KeySubmitSettle    = "timing.submit_settle"
	KeyRestoreSettle   = "timing.restore_settle"
	KeyClickGap        = "timing.click_gap"
	KeyModifierGap     = "timing.modifier_gap"
	KeyKeyPairGap      = "timing.key_pair_gap"
)

// DefaultProvider is used until the user picks one.
const DefaultProvider = provider.ClaudeCode

// persisted keys are the ones Save writes back.
var persisted = []string{KeyProvider, KeyNotified}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyProvider, DefaultProvider.String())
	v.SetDefault(KeyAttachmentsMax, attach.DefaultMax)
	v.SetDefault(KeyEnterRepeat, provider.DefaultEnterRepeat)
	v.SetDefault(KeyNotified, []string{})
	v.SetDefault(KeyClipboardSettle, delivery.DefaultTiming.ClipboardSettle)
	v.SetDefault(KeyFocusSettle, delivery.DefaultTiming.FocusSettle)
	v.SetDefault(KeySubmitSettle, delivery.DefaultTiming.SubmitSettle)
	v.SetDefault(KeyRestoreSettle, delivery.DefaultTiming.RestoreSettle)
	v.SetDefault(KeyClickGap, inject.DefaultDelays.ClickGap)
	v.SetDefault(KeyModifierGap, inject.DefaultDelays.ModifierGap)
	v.SetDefault(KeyKeyPairGap, inject.DefaultDelays.KeyPairGap)
}

// Configure applies the config file search order and env binding to v and
// reads the config file, if any. configFile overrides the search.
//
// Search order (first found wins):
//
//	/etc/agentbridge/agentbridge.toml
//	$HOME/.config/agentbridge/agentbridge.toml
func Configure(v *viper.Viper, configFile string) error {
	SetDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/" + AppName + "/")
		if dir, err := userConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return nil
}

func userConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName), nil
}

// DefaultPath is where Save writes when no config file was read.
func DefaultPath() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName+".toml"), nil
}

// Settings is a typed view over a configured viper instance. It implements
// session.NotifiedStore and workspace.SelectionStore.
type Settings struct {
	v    *viper.Viper
	path string

	mu sync.Mutex
}

// New wraps v. Writes go to the config file v read or, failing that, to
// DefaultPath.
func New(v *viper.Viper) *Settings {
	path := v.ConfigFileUsed()
	if path == "" || strings.HasPrefix(path, "/etc/") {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	return &Settings{v: v, path: path}
}

// Path returns the file Save writes.
func (s *Settings) Path() string { return s.path }

// Provider returns the selected provider, falling back to DefaultProvider
// for an unknown name.
func (s *Settings) Provider() provider.ID {
	name := s.v.GetString(KeyProvider)
	id, err := provider.Parse(name)
	if err != nil {
		slog.Warn("unknown provider in settings, using default", "provider", name, "default", DefaultProvider)
		return DefaultProvider
	}
	return id
}

// SaveSelected persists the selected provider.
func (s *Settings) SaveSelected(id provider.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(KeyProvider, id.String())
	return s.saveLocked(KeyProvider)
}

// Notified returns the providers whose install instructions were shown.
func (s *Settings) Notified() []provider.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifiedLocked()
}

func (s *Settings) notifiedLocked() []provider.ID {
	var out []provider.ID
	for _, name := range s.v.GetStringSlice(KeyNotified) {
		id, err := provider.Parse(name)
		if err != nil {
			continue
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// MarkNotified records id and saves.
func (s *Settings) MarkNotified(id provider.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.notifiedLocked()
	if slices.Contains(ids, id) {
		return nil
	}
	ids = append(ids, id)
	names := make([]string, len(ids))
	for i, n := range ids {
		names[i] = n.String()
	}
	s.v.Set(KeyNotified, names)
	return s.saveLocked(KeyNotified)
}

// AttachmentsMax is the attachment set capacity.
func (s *Settings) AttachmentsMax() int {
	if n := s.v.GetInt(KeyAttachmentsMax); n > 0 {
		return n
	}
	return attach.DefaultMax
}

// Gestures returns the gesture table with the configured Enter repeat.
func (s *Settings) Gestures() provider.Table {
	return provider.Table{EnterRepeat: s.v.GetInt(KeyEnterRepeat)}
}

// Timing returns the delivery settle times.
func (s *Settings) Timing() delivery.Timing {
	return delivery.Timing{
		ClipboardSettle: s.v.GetDuration(KeyClipboardSettle),
		FocusSettle:     s.v.GetDuration(KeyFocusSettle),
		SubmitSettle:    s.v.GetDuration(KeySubmitSettle),
		RestoreSettle:   s.v.GetDuration(KeyRestoreSettle),
	}
}

// Delays returns the injector's in-gesture delays.
func (s *Settings) Delays() inject.Delays {
	return inject.Delays{
		ClickGap:    s.v.GetDuration(KeyClickGap),
		ModifierGap: s.v.GetDuration(KeyModifierGap),
		KeyPairGap:  s.v.GetDuration(KeyKeyPairGap),
	}
}

// Save writes every persisted key, as currently resolved, back to the config
// file, keeping whatever else the file holds. Overrides from flags and the
// environment are written too.
func (s *Settings) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(persisted...)
}

// saveLocked writes keys from the merged view into the file and leaves the
// file's other values alone, so a flag or env override of one key is not
// persisted by saving another.
func (s *Settings) saveLocked(keys ...string) error {
	if s.path == "" {
		return errors.New("settings: no config path")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	f := viper.New()
	f.SetConfigFile(s.path)
	if _, err := os.Stat(s.path); err == nil {
		if err := f.ReadInConfig(); err != nil {
			slog.Warn("rewriting unreadable settings file", "path", s.path, "err", err)
		}
	}
	for _, k := range keys {
		f.Set(k, s.v.Get(k))
	}
	if err := f.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("settings: write %s: %w", s.path, err)
	}
	slog.Debug("settings saved", "path", s.path)
	return nil
}
