package builtin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/backend/local"
	"github.com/mwantia/unifs/cmd"
	"github.com/mwantia/unifs/data"
)

func setupShell(t *testing.T) (*cmd.Manager, string) {
	t.Helper()

	root := t.TempDir()
	lb, err := local.NewLocalBackend(local.Config{Root: root})
	if err != nil {
		t.Fatalf("NewLocalBackend failed: %v", err)
	}
	if err := lb.Open(t.Context()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	m := cmd.NewManager(lb, nil)
	if err := Register(m); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	return m, root
}

func run(t *testing.T, m *cmd.Manager, line string) string {
	t.Helper()

	var out strings.Builder
	if code, err := m.ExecuteLine(t.Context(), &out, line); err != nil || code != 0 {
		t.Fatalf("%q failed with code %d: %v", line, code, err)
	}
	return out.String()
}

func writeLocal(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestBuiltin_Navigation(t *testing.T) {
	m, _ := setupShell(t)

	run(t, m, "mkdir /docs /docs/sub")
	run(t, m, "cd docs")
	if out := run(t, m, "pwd"); out != "/docs\n" {
		t.Errorf("Expected '/docs', got %q", out)
	}

	run(t, m, "cd")
	if out := run(t, m, "pwd"); out != "/\n" {
		t.Errorf("Expected '/', got %q", out)
	}

	var out strings.Builder
	if code, err := m.ExecuteLine(t.Context(), &out, "cd ../.."); code != 1 || !errors.Is(err, data.ErrInvalidPath) {
		t.Errorf("Expected escape above root to fail, got %d %v", code, err)
	}
}

func TestBuiltin_PutGetStatLs(t *testing.T) {
	m, _ := setupShell(t)
	scratch := t.TempDir()
	src := writeLocal(t, scratch, "hello.txt", "hello")

	if out := run(t, m, "put "+src+" /a/b.txt"); out != "/a/b.txt: 5 bytes\n" {
		t.Errorf("Unexpected put output %q", out)
	}
	run(t, m, "mkdir /a/dir")

	if out := run(t, m, "get /a/b.txt"); out != "hello" {
		t.Errorf("Expected 'hello', got %q", out)
	}
	if out := run(t, m, "get --offset 2 /a/b.txt"); out != "llo" {
		t.Errorf("Expected 'llo', got %q", out)
	}

	if out := run(t, m, "ls /a"); out != "dir/\nb.txt\n" {
		t.Errorf("Expected directories first, got %q", out)
	}
	long := run(t, m, "ls -l /a")
	if !strings.Contains(long, "-r--r--r--") || !strings.Contains(long, "dr-xr-xr-x") {
		t.Errorf("Expected modes in long listing, got %q", long)
	}

	stat := run(t, m, "stat /a/b.txt")
	if !strings.Contains(stat, "Type: file") || !strings.Contains(stat, "Size: 5") {
		t.Errorf("Unexpected stat output %q", stat)
	}
	if out := run(t, m, "stat --json /a/b.txt"); !strings.Contains(out, `"key":"a/b.txt"`) {
		t.Errorf("Unexpected JSON stat output %q", out)
	}

	target := filepath.Join(scratch, "out")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	run(t, m, "get /a/b.txt "+target)
	if content, err := os.ReadFile(filepath.Join(target, "b.txt")); err != nil || string(content) != "hello" {
		t.Errorf("Expected downloaded file, got %q %v", content, err)
	}
}

func TestBuiltin_PartialPut(t *testing.T) {
	m, _ := setupShell(t)
	scratch := t.TempDir()

	run(t, m, "put "+writeLocal(t, scratch, "base", "0123456789")+" /f")
	run(t, m, "put --append "+writeLocal(t, scratch, "tail", "ab")+" /f")
	run(t, m, "put -o 2 "+writeLocal(t, scratch, "patch", "XY")+" /f")

	if out := run(t, m, "get /f"); out != "01XY456789ab" {
		t.Errorf("Expected merged content, got %q", out)
	}
}

func TestBuiltin_MoveAndRemove(t *testing.T) {
	m, root := setupShell(t)
	scratch := t.TempDir()
	src := writeLocal(t, scratch, "x", "x")

	run(t, m, "put "+src+" /a/one")
	run(t, m, "put "+src+" /a/sub/two")
	run(t, m, "mv /a /b")

	if _, err := os.Stat(filepath.Join(root, "b", "sub", "two")); err != nil {
		t.Errorf("Expected moved tree, got %v", err)
	}

	run(t, m, "rm /b/one")
	if _, err := os.Stat(filepath.Join(root, "b", "one")); !os.IsNotExist(err) {
		t.Errorf("Expected file to be removed, got %v", err)
	}

	run(t, m, "rm -r /b")
	if _, err := os.Stat(filepath.Join(root, "b")); !os.IsNotExist(err) {
		t.Errorf("Expected tree to be removed, got %v", err)
	}
}

func TestBuiltin_Errors(t *testing.T) {
	m, _ := setupShell(t)

	cases := map[string]int{
		"get":             2,
		"get --offset -1": 2,
		"mv onlyone":      2,
		"rm":              2,
		"stat /missing":   1,
		"get /missing":    1,
		"url /missing":    1,
		"unknown":         2,
	}

	for line, expected := range cases {
		var out strings.Builder
		code, err := m.ExecuteLine(t.Context(), &out, line)
		if code != expected || err == nil {
			t.Errorf("%q: expected code %d with error, got %d %v", line, expected, code, err)
		}
	}

	var out strings.Builder
	if _, err := m.ExecuteLine(t.Context(), &out, "url /missing"); !errors.Is(err, data.ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported from url on local backend, got %v", err)
	}
}

type signingBackend struct {
	backend.StorageBackend
}

func (signingBackend) Name() string {
	return "signing"
}

func (signingBackend) SignedURL(ctx context.Context, path string) (string, error) {
	key, _ := data.ResolveKey("/", path)
	return "https://example.invalid/" + key + "?sig=1", nil
}

func TestBuiltin_URL(t *testing.T) {
	m := cmd.NewManager(signingBackend{}, nil)
	if err := Register(m); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if out := run(t, m, "url /a/b.txt"); out != "https://example.invalid/a/b.txt?sig=1\n" {
		t.Errorf("Unexpected URL output %q", out)
	}
}

func TestBuiltin_Help(t *testing.T) {
	m, _ := setupShell(t)

	out := run(t, m, "help")
	for _, name := range []string{"cd [path]", "get [--offset N] <path> [local]", "put [--append]", "url <path>"} {
		if !strings.Contains(out, name) {
			t.Errorf("Expected help to mention %q, got %q", name, out)
		}
	}

	if out := run(t, m, "help rm"); !strings.Contains(out, "--recursive") {
		t.Errorf("Expected flag help, got %q", out)
	}
}
