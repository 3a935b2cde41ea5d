package consul

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupConsul starts a Consul dev agent and returns a backend below a
// test prefix.
func setupConsul(t *testing.T) *ConsulBackend {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "hashicorp/consul:latest",
			ExposedPorts: []string{"8500/tcp"},
			Cmd:          []string{"agent", "-dev", "-client", "0.0.0.0"},
			WaitingFor:   wait.ForHTTP("/v1/status/leader").WithPort("8500/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Consul container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	cb, err := NewConsulBackend(Config{
		Address: endpoint,
		Prefix:  "unifs/test",
	})
	require.NoError(t, err)
	require.NoError(t, cb.Open(ctx))

	return cb
}

func write(t *testing.T, cb *ConsulBackend, path, content string, opts backend.WriteOptions) {
	t.Helper()

	session, err := cb.WriteObject(t.Context(), path, opts)
	require.NoError(t, err)
	_, err = io.WriteString(session, content)
	require.NoError(t, err)
	require.NoError(t, session.Close())
}

func read(t *testing.T, cb *ConsulBackend, path string, offset int64) string {
	t.Helper()

	reader, err := cb.ReadObject(t.Context(), path, backend.ReadOptions{Offset: offset})
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	return string(content)
}

func TestConsulIntegration_ReadWriteStat(t *testing.T) {
	cb := setupConsul(t)
	ctx := t.Context()

	write(t, cb, "/a/b.txt", "hello", backend.WriteOptions{})
	write(t, cb, "/a/b.txt", " world", backend.WriteOptions{Append: true})
	write(t, cb, "/a/b.txt", "W", backend.WriteOptions{Offset: 6})

	assert.Equal(t, "hello World", read(t, cb, "/a/b.txt", 0))
	assert.Equal(t, "World", read(t, cb, "/a/b.txt", 6))

	stat, err := cb.StatObject(ctx, "/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(11), stat.Size)
	assert.False(t, stat.ModifyTime.IsZero())

	dir, err := cb.StatObject(ctx, "/a")
	require.NoError(t, err)
	assert.True(t, dir.IsDir())

	_, err = cb.StatObject(ctx, "/missing")
	assert.True(t, errors.Is(err, data.ErrNotExist))

	_, err = cb.ReadObject(ctx, "/a", backend.ReadOptions{})
	assert.True(t, errors.Is(err, data.ErrIsDirectory))

	assert.True(t, errors.Is(cb.EnsureDirectory(ctx, "/a/b.txt"), data.ErrNotDirectory))
}

func TestConsulIntegration_ListAndDeleteTree(t *testing.T) {
	cb := setupConsul(t)
	ctx := t.Context()

	write(t, cb, "/dir/one.txt", "1", backend.WriteOptions{})
	write(t, cb, "/dir/two.txt", "2", backend.WriteOptions{})
	write(t, cb, "/dir/sub/three.txt", "3", backend.WriteOptions{})

	entries, err := cb.ListObjects(ctx, "/dir")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "sub", entries[0].Name)
	assert.True(t, entries[0].IsDir())
	assert.Equal(t, "one.txt", entries[1].Name)

	require.NoError(t, cb.DeleteTree(ctx, "/dir"))
	entries, err = cb.ListObjects(ctx, "/dir")
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.True(t, errors.Is(cb.DeleteObject(ctx, "/dir/one.txt"), data.ErrNotExist))
}

func TestConsulIntegration_Rename(t *testing.T) {
	cb := setupConsul(t)
	ctx := t.Context()

	write(t, cb, "/a/b.txt", "hello", backend.WriteOptions{})
	require.NoError(t, cb.RenameObject(ctx, "/a/b.txt", "/a/c.txt"))
	assert.Equal(t, "hello", read(t, cb, "/a/c.txt", 0))

	_, err := cb.StatObject(ctx, "/a/b.txt")
	assert.True(t, errors.Is(err, data.ErrNotExist))

	for i := range 40 {
		write(t, cb, fmt.Sprintf("/big/f%02d", i), "x", backend.WriteOptions{})
	}
	require.NoError(t, cb.RenameObject(ctx, "/big", "/moved"))

	entries, err := cb.ListObjects(ctx, "/moved")
	require.NoError(t, err)
	assert.Len(t, entries, 40)

	entries, err = cb.ListObjects(ctx, "/big")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConsulIntegration_FileAndDirectoryConflicts(t *testing.T) {
	cb := setupConsul(t)
	ctx := t.Context()

	writeErr := func(path string) error {
		session, err := cb.WriteObject(ctx, path, backend.WriteOptions{})
		require.NoError(t, err)
		_, _ = io.WriteString(session, "x")
		return session.Close()
	}

	write(t, cb, "/a", "file", backend.WriteOptions{})
	assert.ErrorIs(t, writeErr("/a/x"), data.ErrNotDirectory)

	write(t, cb, "/d/x", "child", backend.WriteOptions{})
	assert.ErrorIs(t, writeErr("/d"), data.ErrIsDirectory)

	entries, err := cb.ListObjects(ctx, "/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "d", entries[0].Name)
	assert.Equal(t, "a", entries[1].Name)
}
