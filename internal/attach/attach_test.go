package attach

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/agentbridge/internal/provider"
)

func TestSetCapacityAndOrder(t *testing.T) {
	s := NewSet(3)
	assert.True(t, s.Add("a.png"))
	assert.True(t, s.Add("b.png"))
	assert.True(t, s.Add("a.png"), "duplicates are allowed")
	assert.False(t, s.Add("c.png"))
	assert.False(t, s.Add("d.png"))

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"a.png", "b.png", "a.png"}, s.Paths())

	s.Remove(0)
	s.Remove(10)
	assert.Equal(t, []string{"b.png", "a.png"}, s.Paths())
	assert.True(t, s.Add("c.png"))
	assert.Equal(t, []string{"b.png", "a.png", "c.png"}, s.Paths())

	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestSetDefaultMax(t *testing.T) {
	s := NewSet(0)
	assert.Equal(t, DefaultMax, s.Max())
	for i := 0; i < DefaultMax+2; i++ {
		s.Add("x")
	}
	assert.Equal(t, DefaultMax, s.Len())
}

func TestPathsIsACopy(t *testing.T) {
	s := NewSet(2)
	s.Add("a")
	p := s.Paths()
	p[0] = "z"
	assert.Equal(t, []string{"a"}, s.Paths())
}

func TestToWSLPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`C:\Users\me\shot.png`, "/mnt/c/Users/me/shot.png"},
		{`d:\data`, "/mnt/d/data"},
		{`E:\`, "/mnt/e"},
		{`C:/mixed\seps/x.txt`, "/mnt/c/mixed/seps/x.txt"},
		{`\\wsl$\Ubuntu\home\me\a.png`, "/home/me/a.png"},
		{`\\wsl.localhost\Debian\tmp\b.png`, "/tmp/b.png"},
		{`\\WSL$\Ubuntu`, "/"},
		{"/already/posix", "/already/posix"},
		{`\\server\share\f.txt`, "//server/share/f.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ToWSLPath(tt.in))
		})
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestStageCopiesIntoFreshDirectory(t *testing.T) {
	src := t.TempDir()
	root := t.TempDir()
	a := writeFile(t, src, "one.png", "1")
	b := writeFile(t, src, "two.png", "2")

	set := NewSet(5)
	set.Add(a)
	set.Add(b)

	st := Stager{Root: root}
	first := st.Stage(set, nil)
	second := st.Stage(set, nil)

	require.Len(t, first, 2)
	assert.Equal(t, "one.png", filepath.Base(first[0]))
	assert.Equal(t, "two.png", filepath.Base(first[1]))
	assert.Equal(t, filepath.Dir(first[0]), filepath.Dir(first[1]))
	assert.NotEqual(t, filepath.Dir(first[0]), filepath.Dir(second[0]), "one directory per send")
	assert.True(t, strings.HasPrefix(first[0], root))

	data, err := os.ReadFile(first[1])
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))
}

func TestStageFallsBackToOriginalPath(t *testing.T) {
	src := t.TempDir()
	good := writeFile(t, src, "good.txt", "ok")
	missing := filepath.Join(src, "missing.txt")

	set := NewSet(5)
	set.Add(missing)
	set.Add(good)

	got := Stager{Root: t.TempDir()}.Stage(set, nil)
	require.Len(t, got, 2)
	assert.Equal(t, missing, got[0])
	assert.NotEqual(t, good, got[1])
	assert.Equal(t, "good.txt", filepath.Base(got[1]))
}

func TestStageOverwritesSameNameWithinDirectory(t *testing.T) {
	a := writeFile(t, t.TempDir(), "img.png", "first")
	b := writeFile(t, t.TempDir(), "img.png", "second")

	set := NewSet(5)
	set.Add(a)
	set.Add(b)

	got := Stager{Root: t.TempDir()}.Stage(set, nil)
	require.Len(t, got, 2)
	assert.Equal(t, got[0], got[1])
	data, err := os.ReadFile(got[1])
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestStageRewritesForCompatProvider(t *testing.T) {
	a := writeFile(t, t.TempDir(), "a.png", "a")
	b := writeFile(t, t.TempDir(), "b.png", "b")
	set := NewSet(5)
	set.Add(a)
	set.Add(b)

	st := Stager{Root: t.TempDir()}
	native := st.Stage(set, nil)
	cursor := provider.CursorAgent
	compat := st.Stage(set, &cursor)

	require.Len(t, compat, 2)
	for i := range compat {
		assert.Equal(t, filepath.Base(native[i]), filepath.Base(filepath.FromSlash(compat[i])))
		assert.NotContains(t, compat[i], `\`)
	}
}

func TestStageEmptySet(t *testing.T) {
	assert.Nil(t, Stager{Root: t.TempDir()}.Stage(NewSet(3), nil))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "body", Prefix(nil, "body"))
	assert.Equal(t, "/mnt/c/a.png\n/mnt/c/b.png\n\nexplain these",
		Prefix([]string{"/mnt/c/a.png", "/mnt/c/b.png"}, "explain these"))
}
