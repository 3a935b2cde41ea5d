package sqldb

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
)

func newSQLiteBackend(t *testing.T, dsn string) *SQLBackend {
	t.Helper()

	sb, err := NewSQLBackend(Config{
		Dialect:  DialectSQLite,
		DSN:      dsn,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("NewSQLBackend failed: %v", err)
	}
	if err := sb.Open(t.Context()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = sb.Close(t.Context()) })

	return sb
}

func write(t *testing.T, sb *SQLBackend, path, content string, opts backend.WriteOptions) {
	t.Helper()

	session, err := sb.WriteObject(t.Context(), path, opts)
	if err != nil {
		t.Fatalf("WriteObject failed: %v", err)
	}
	if _, err := io.WriteString(session, content); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func read(t *testing.T, sb *SQLBackend, path string, offset int64) string {
	t.Helper()

	reader, err := sb.ReadObject(t.Context(), path, backend.ReadOptions{Offset: offset})
	if err != nil {
		t.Fatalf("ReadObject failed: %v", err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return string(content)
}

func TestConfig_Validate(t *testing.T) {
	if _, err := NewSQLBackend(Config{Dialect: "oracle", DSN: "x"}); !errors.Is(err, data.ErrInvalid) {
		t.Errorf("Expected ErrInvalid for unknown dialect, got %v", err)
	}
	if _, err := NewSQLBackend(Config{Dialect: DialectSQLite}); !errors.Is(err, data.ErrInvalid) {
		t.Errorf("Expected ErrInvalid without dsn, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	sqlite := &SQLBackend{cfg: Config{Dialect: DialectSQLite}}
	postgres := &SQLBackend{cfg: Config{Dialect: DialectPostgres}}

	query := "SELECT key FROM t WHERE key > ? AND key < ? LIMIT ?"
	if got := sqlite.rebind(query); got != query {
		t.Errorf("SQLite query must stay unchanged, got %q", got)
	}
	if got := postgres.rebind(query); got != "SELECT key FROM t WHERE key > $1 AND key < $2 LIMIT $3" {
		t.Errorf("Unexpected Postgres query %q", got)
	}
}

func TestSubtree(t *testing.T) {
	if lower, upper := subtree(""); lower != "" || upper != "" {
		t.Errorf("Expected empty bounds for root, got %q %q", lower, upper)
	}
	if lower, upper := subtree("a/b"); lower != "a/b/" || upper != "a/b0" {
		t.Errorf("Unexpected bounds %q %q", lower, upper)
	}
}

func TestSQLiteBackend_Scenario(t *testing.T) {
	ctx := t.Context()
	sb := newSQLiteBackend(t, MemoryDSN)

	write(t, sb, "/a/b.txt", "hello", backend.WriteOptions{})

	stat, err := sb.StatObject(ctx, "/a/b.txt")
	if err != nil {
		t.Fatalf("StatObject failed: %v", err)
	}
	if stat.IsDir() || stat.Size != 5 || stat.Name != "b.txt" {
		t.Errorf("Unexpected stat: %+v", stat)
	}

	entries, err := sb.ListObjects(ctx, "/a")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "b.txt" {
		t.Errorf("Unexpected listing: %v", entries)
	}

	if err := sb.RenameObject(ctx, "/a/b.txt", "/a/c.txt"); err != nil {
		t.Fatalf("RenameObject failed: %v", err)
	}
	if _, err := sb.StatObject(ctx, "/a/b.txt"); !errors.Is(err, data.ErrNotExist) {
		t.Errorf("Expected ErrNotExist for source, got %v", err)
	}
	if got := read(t, sb, "/a/c.txt", 0); got != "hello" {
		t.Errorf("Expected 'hello', got %q", got)
	}
}

func TestSQLiteBackend_PartialWrites(t *testing.T) {
	sb := newSQLiteBackend(t, MemoryDSN)

	write(t, sb, "/f.txt", "hello", backend.WriteOptions{})
	write(t, sb, "/f.txt", " world", backend.WriteOptions{Append: true})
	write(t, sb, "/f.txt", "W", backend.WriteOptions{Offset: 6})

	if got := read(t, sb, "/f.txt", 0); got != "hello World" {
		t.Errorf("Expected 'hello World', got %q", got)
	}
	if got := read(t, sb, "/f.txt", 6); got != "World" {
		t.Errorf("Expected 'World', got %q", got)
	}
	if got := read(t, sb, "/f.txt", 100); got != "" {
		t.Errorf("Expected empty read past the end, got %q", got)
	}

	write(t, sb, "/f.txt", "x", backend.WriteOptions{})
	if got := read(t, sb, "/f.txt", 0); got != "x" {
		t.Errorf("Expected truncating write, got %q", got)
	}
}

func TestSQLiteBackend_ListPaginates(t *testing.T) {
	ctx := t.Context()
	sb := newSQLiteBackend(t, MemoryDSN)

	for i := range 5 {
		write(t, sb, fmt.Sprintf("/dir/file%d.txt", i), "x", backend.WriteOptions{})
	}
	write(t, sb, "/dir/sub/one.txt", "1", backend.WriteOptions{})
	write(t, sb, "/dir/sub/two.txt", "2", backend.WriteOptions{})
	write(t, sb, "/dir0.txt", "outside", backend.WriteOptions{})
	write(t, sb, "/dir.txt", "outside", backend.WriteOptions{})

	entries, err := sb.ListObjects(ctx, "/dir")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("Expected 6 entries, got %d: %v", len(entries), entries)
	}
	if !entries[0].IsDir() || entries[0].Name != "sub" {
		t.Errorf("Expected directory first, got %+v", entries[0])
	}
	for i, entry := range entries[1:] {
		if entry.Name != fmt.Sprintf("file%d.txt", i) {
			t.Errorf("Unexpected entry %d: %s", i, entry.Name)
		}
	}

	root, err := sb.ListObjects(ctx, "/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(root) != 3 {
		t.Errorf("Expected dir, dir.txt and dir0.txt at root, got %v", root)
	}
}

func TestSQLiteBackend_DirectoriesAndDeletes(t *testing.T) {
	ctx := t.Context()
	sb := newSQLiteBackend(t, MemoryDSN)

	write(t, sb, "/tree/a.txt", "a", backend.WriteOptions{})
	write(t, sb, "/tree/sub/b.txt", "b", backend.WriteOptions{})
	write(t, sb, "/tree0", "sibling", backend.WriteOptions{})

	dir, err := sb.StatObject(ctx, "/tree")
	if err != nil || !dir.IsDir() {
		t.Fatalf("Expected /tree to be a directory, got %v %v", dir, err)
	}

	if _, err := sb.ReadObject(ctx, "/tree", backend.ReadOptions{}); !errors.Is(err, data.ErrIsDirectory) {
		t.Errorf("Expected ErrIsDirectory, got %v", err)
	}
	if err := sb.DeleteObject(ctx, "/tree"); !errors.Is(err, data.ErrIsDirectory) {
		t.Errorf("Expected ErrIsDirectory on delete, got %v", err)
	}
	if err := sb.DeleteObject(ctx, "/missing"); !errors.Is(err, data.ErrNotExist) {
		t.Errorf("Expected ErrNotExist on delete, got %v", err)
	}
	if err := sb.EnsureDirectory(ctx, "/tree0"); !errors.Is(err, data.ErrNotDirectory) {
		t.Errorf("Expected ErrNotDirectory, got %v", err)
	}

	if err := sb.DeleteTree(ctx, "/tree"); err != nil {
		t.Fatalf("DeleteTree failed: %v", err)
	}

	entries, err := sb.ListObjects(ctx, "/tree")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty listing after delete, got %v", entries)
	}
	if got := read(t, sb, "/tree0", 0); got != "sibling" {
		t.Errorf("Expected sibling to survive, got %q", got)
	}
}

func writeErr(t *testing.T, sb *SQLBackend, path, content string) error {
	t.Helper()

	session, err := sb.WriteObject(t.Context(), path, backend.WriteOptions{})
	if err != nil {
		return err
	}
	_, _ = io.WriteString(session, content)
	return session.Close()
}

func TestSQLiteBackend_FileAndDirectoryConflicts(t *testing.T) {
	ctx := t.Context()
	sb := newSQLiteBackend(t, MemoryDSN)

	write(t, sb, "/a", "file", backend.WriteOptions{})
	if err := writeErr(t, sb, "/a/x", "below a file"); !errors.Is(err, data.ErrNotDirectory) {
		t.Errorf("Expected ErrNotDirectory below a file, got %v", err)
	}
	if err := writeErr(t, sb, "/a/b/c", "deep below a file"); !errors.Is(err, data.ErrNotDirectory) {
		t.Errorf("Expected ErrNotDirectory for nested path below a file, got %v", err)
	}

	write(t, sb, "/d/x", "child", backend.WriteOptions{})
	if err := writeErr(t, sb, "/d", "over a directory"); !errors.Is(err, data.ErrIsDirectory) {
		t.Errorf("Expected ErrIsDirectory over a directory, got %v", err)
	}

	entries, err := sb.ListObjects(ctx, "/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected a and d at root, got %v", entries)
	}
	if !entries[0].IsDir() || entries[0].Name != "d" || entries[1].IsDir() || entries[1].Name != "a" {
		t.Errorf("Unexpected root listing: %v", entries)
	}

	stat, err := sb.StatObject(ctx, "/a")
	if err != nil || stat.IsDir() {
		t.Errorf("Expected /a to stay a file, got %v %v", stat, err)
	}
}

func TestSQLiteBackend_RenameDirectory(t *testing.T) {
	ctx := t.Context()
	sb := newSQLiteBackend(t, filepath.Join(t.TempDir(), "unifs.db"))

	write(t, sb, "/src/one.txt", "1", backend.WriteOptions{})
	write(t, sb, "/src/deep/two.txt", "2", backend.WriteOptions{})
	write(t, sb, "/dst/old.txt", "replaced", backend.WriteOptions{})

	if err := sb.RenameObject(ctx, "/src", "/dst"); err != nil {
		t.Fatalf("RenameObject failed: %v", err)
	}
	if got := read(t, sb, "/dst/deep/two.txt", 0); got != "2" {
		t.Errorf("Expected '2', got %q", got)
	}
	if _, err := sb.StatObject(ctx, "/dst/old.txt"); !errors.Is(err, data.ErrNotExist) {
		t.Errorf("Expected destination to be replaced, got %v", err)
	}
	if _, err := sb.StatObject(ctx, "/src"); !errors.Is(err, data.ErrNotExist) {
		t.Errorf("Expected source to be gone, got %v", err)
	}

	var re *data.RenameError
	err := sb.RenameObject(ctx, "/missing", "/other")
	if !errors.As(err, &re) || re.Copied || !errors.Is(err, data.ErrNotExist) {
		t.Errorf("Expected RenameError with ErrNotExist, got %v", err)
	}
	if err := sb.RenameObject(ctx, "/dst", "/dst/inner"); !errors.Is(err, data.ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath when moving into itself, got %v", err)
	}
}
