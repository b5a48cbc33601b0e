// Package logging configures slog for the agentbridge binary.
//
// Interactive runs (a terminal on stderr, or --no-background) get colourised
// tinter output at debug level; the bridge running behind an editor gets JSON
// at info so its log can be tailed by the host.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"
)

// Format selects the log output format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat converts a string to a Format, returning FormatAuto for unknown values.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "tint", "human", "console":
		return FormatText
	case "json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// ParseLevel converts a string to a slog.Level. An empty or unparsable value
// yields DefaultLevel(interactive).
func ParseLevel(s string, interactive bool) slog.Level {
	var l slog.Level
	if s == "" || l.UnmarshalText([]byte(s)) != nil {
		return DefaultLevel(interactive)
	}
	return l
}

// DefaultLevel is debug for interactive runs and info otherwise.
func DefaultLevel(interactive bool) slog.Level {
	if interactive {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Options controls NewHandler.
type Options struct {
	Format Format
	Level  slog.Leveler
	// Component, when set, is attached to every record.
	Component string
}

// NewHandler builds the handler for w. FormatAuto picks tinter when w is a
// terminal and JSON otherwise.
func NewHandler(w io.Writer, opts Options) slog.Handler {
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}

	var h slog.Handler
	if opts.Format == FormatText || (opts.Format == FormatAuto && IsTTY(w)) {
		h = tinter.NewHandler(w, &tinter.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		})
	} else {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	if opts.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", opts.Component)})
	}
	return h
}

// Setup installs a stderr logger as the slog default and returns it. Call
// once after flag/viper parsing.
func Setup(opts Options) *slog.Logger {
	l := slog.New(NewHandler(os.Stderr, opts))
	slog.SetDefault(l)
	return l
}
