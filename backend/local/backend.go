package local

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
	"github.com/mwantia/unifs/log"
)

// Config configures a LocalBackend.
type Config struct {
	// Root is the directory every key is resolved below.
	Root string

	Logger *log.Logger
}

// LocalBackend serves a directory tree of the local filesystem. Paths
// climbing above Root are rejected.
type LocalBackend struct {
	mu     sync.RWMutex
	root   string
	wd     *backend.Workdir
	logger *log.Logger
}

func NewLocalBackend(cfg Config) (*LocalBackend, error) {
	if cfg.Root == "" {
		return nil, data.NewPathError("open", cfg.Root, data.ErrInvalidPath)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, data.NewPathError("open", cfg.Root, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}

	return &LocalBackend{
		root:   filepath.Clean(root),
		wd:     backend.NewWorkdir(true),
		logger: logger.Named("local"),
	}, nil
}

// Returns the identifier name defined for this backend
func (*LocalBackend) Name() string {
	return "local"
}

// Open verifies the root directory exists.
func (lb *LocalBackend) Open(ctx context.Context) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	info, err := os.Stat(lb.root)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return data.NewPathError("open", lb.root, data.ErrPermission)
		}

		return data.NewPathError("open", lb.root, errors.Join(data.ErrOpenFailed, err))
	}

	if !info.IsDir() {
		return data.NewPathError("open", lb.root, data.ErrNotDirectory)
	}

	lb.logger.Debug("Opened root '%s'", lb.root)
	return nil
}

// Close is part of the lifecycle behaviour; the filesystem persists independently.
func (lb *LocalBackend) Close(ctx context.Context) error {
	return nil
}

// GetCapabilities returns a list of capabilities supported by this backend.
func (lb *LocalBackend) GetCapabilities() *backend.BackendCapabilities {
	return &backend.BackendCapabilities{
		Capabilities: []backend.BackendCapability{
			backend.CapabilityObjectStorage,
			backend.CapabilityStreaming,
			backend.CapabilityRangeRead,
			backend.CapabilityAppend,
			backend.CapabilityOffsetWrite,
			backend.CapabilityPrefixDelete,
			backend.CapabilityAtomicRename,
		},
	}
}

func (lb *LocalBackend) CurrentDirectory() string {
	return lb.wd.Current()
}

// ChangeDirectory only accepts existing directories.
func (lb *LocalBackend) ChangeDirectory(ctx context.Context, path string) error {
	key, fullPath, err := lb.resolve(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return mapError("chdir", key, err)
	}
	if !info.IsDir() {
		return data.NewPathError("chdir", key, data.ErrNotDirectory)
	}

	lb.wd.Set(key)
	return nil
}

// resolve returns the key and the absolute filesystem path for path.
func (lb *LocalBackend) resolve(path string) (string, string, error) {
	key, err := lb.wd.Resolve(path)
	if err != nil {
		return "", "", err
	}

	return key, filepath.Join(lb.root, filepath.FromSlash(key)), nil
}

// toFileStat converts os.FileInfo to a FileStat.
func toFileStat(key string, info os.FileInfo) *data.FileStat {
	if info.IsDir() {
		return data.NewDirStat(key, info.ModTime())
	}

	stat := data.NewFileStat(key, info.Size(), info.ModTime())
	stat.ContentType = data.ContentTypeOf(info.Name())

	return stat
}

func mapError(op, key string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return data.NotExist(op, key)
	case errors.Is(err, fs.ErrPermission):
		return data.NewPathError(op, key, data.ErrPermission)
	case errors.Is(err, fs.ErrExist):
		return data.NewPathError(op, key, data.ErrExist)
	default:
		return data.Transport(op, key, err)
	}
}
