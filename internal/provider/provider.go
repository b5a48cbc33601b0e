// Package provider describes the interactive agent CLIs that can run inside
// the embedded console: how each one is launched, how a paste and a submit
// must be performed against its input loop, and whether it is installed.
//
// Adding a provider is a data change: a new ID, a row in the protocol table,
// a row in the launch table and a probe.
package provider

import (
	"fmt"
	"strings"
)

// ID identifies a supported agent CLI.
type ID int

const (
	ClaudeCode    ID = iota + 1 // native Windows build of Claude Code
	ClaudeCodeWSL               // Claude Code running inside WSL
	Codex                       // OpenAI Codex CLI, native
	CursorAgent                 // Cursor agent CLI, WSL only
	QwenCode                    // Qwen Code CLI, native
	OpenCode                    // opencode TUI, native
)

var names = map[ID]string{
	ClaudeCode:    "claude",
	ClaudeCodeWSL: "claude-wsl",
	Codex:         "codex",
	CursorAgent:   "cursor-agent",
	QwenCode:      "qwen",
	OpenCode:      "opencode",
}

var displayNames = map[ID]string{
	ClaudeCode:    "Claude Code",
	ClaudeCodeWSL: "Claude Code (WSL)",
	Codex:         "Codex",
	CursorAgent:   "Cursor Agent",
	QwenCode:      "Qwen Code",
	OpenCode:      "OpenCode",
}

// All returns every provider in declaration order.
func All() []ID {
	return []ID{ClaudeCode, ClaudeCodeWSL, Codex, CursorAgent, QwenCode, OpenCode}
}

// Parse converts a configuration name (e.g. "claude-wsl") into an ID.
// Matching is case-insensitive and accepts underscores for dashes.
func Parse(s string) (ID, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for id, name := range names {
		if name == key {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown provider %q", s)
}

// Valid reports whether id is one of the known providers.
func (id ID) Valid() bool {
	_, ok := names[id]
	return ok
}

// String returns the configuration name of the provider.
func (id ID) String() string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("provider(%d)", int(id))
}

// DisplayName returns the human-readable name used in titles and notices.
func (id ID) DisplayName() string {
	if n, ok := displayNames[id]; ok {
		return n
	}
	return id.String()
}

// Compat reports whether the provider runs inside the WSL compatibility
// subsystem, which changes both its gestures and the path syntax it expects.
func (id ID) Compat() bool {
	return id == ClaudeCodeWSL || id == CursorAgent
}

// Name renders an optional running provider for logs; nil is the plain shell.
func Name(id *ID) string {
	if id == nil {
		return "shell"
	}
	return id.String()
}
