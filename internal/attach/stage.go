package attach

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"go.klb.dev/agentbridge/internal/provider"
)

// Stager copies attachments into a fresh directory per send. The directories
// are left for the OS temp cleaner.
type Stager struct {
	// Root is where staging directories are created; empty means os.TempDir().
	Root string
}

// Stage copies each attachment into a new uniquely named directory and
// returns the paths to reference in the prompt, in attachment order. Paths
// are rewritten to WSL syntax when running is a compat provider. A file that
// cannot be copied is referenced by its original path instead.
func (st Stager) Stage(set *Set, running *provider.ID) []string {
	paths := set.Paths()
	if len(paths) == 0 {
		return nil
	}
	compat := running != nil && running.Compat()

	dir, err := st.mkdir()
	if err != nil {
		slog.Warn("staging directory unavailable, using original paths", "err", err)
	}

	out := make([]string, len(paths))
	for i, src := range paths {
		p := src
		if dir != "" {
			dst := filepath.Join(dir, filepath.Base(src))
			if err := copyFile(src, dst); err != nil {
				slog.Warn("attachment copy failed, using original path", "path", src, "err", err)
			} else {
				p = dst
			}
		}
		if compat {
			p = ToWSLPath(p)
		}
		out[i] = p
	}
	slog.Debug("attachments staged", "dir", dir, "count", len(out), "compat", compat)
	return out
}

func (st Stager) mkdir() (string, error) {
	root := st.Root
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "agentbridge", uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// copyFile copies src to dst, replacing dst if it exists.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ToWSLPath converts a Windows path to the path WSL sees for the same file:
//
//	C:\Users\me\a.png                 → /mnt/c/Users/me/a.png
//	\\wsl$\Ubuntu\home\me\a.png       → /home/me/a.png
//	\\wsl.localhost\Ubuntu\tmp\a.png  → /tmp/a.png
//
// Anything else (already POSIX, other UNC shares) is returned with
// backslashes turned into slashes.
func ToWSLPath(p string) string {
	for _, prefix := range []string{`\\wsl$\`, `\\wsl.localhost\`} {
		if len(p) > len(prefix) && strings.EqualFold(p[:len(prefix)], prefix) {
			rest := p[len(prefix):]
			// Drop the distribution name.
			if i := strings.IndexByte(rest, '\\'); i >= 0 {
				return "/" + strings.ReplaceAll(rest[i+1:], `\`, "/")
			}
			return "/"
		}
	}
	if len(p) >= 2 && p[1] == ':' && isLetter(p[0]) {
		drive := strings.ToLower(p[:1])
		rest := strings.TrimLeft(strings.ReplaceAll(p[2:], `\`, "/"), "/")
		if rest == "" {
			return "/mnt/" + drive
		}
		return "/mnt/" + drive + "/" + rest
	}
	return strings.ReplaceAll(p, `\`, "/")
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Prefix renders staged paths ahead of the prompt body, one per line.
func Prefix(paths []string, body string) string {
	if len(paths) == 0 {
		return body
	}
	var b strings.Builder
	for _, p := range paths {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(body)
	return b.String()
}
