package local

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
)

func (lb *LocalBackend) StatObject(ctx context.Context, path string) (*data.FileStat, error) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	key, fullPath, err := lb.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, mapError("stat", key, err)
	}

	return toFileStat(key, info), nil
}

func (lb *LocalBackend) ListObjects(ctx context.Context, path string) ([]*data.FileStat, error) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	key, fullPath, err := lb.resolve(path)
	if err != nil {
		return nil, err
	}

	return lb.list(key, fullPath)
}

func (lb *LocalBackend) list(key, fullPath string) ([]*data.FileStat, error) {
	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, mapError("list", key, err)
	}
	if !info.IsDir() {
		return nil, data.NewPathError("list", key, data.ErrNotDirectory)
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, mapError("list", key, err)
	}

	listing := backend.NewListing()
	for _, entry := range entries {
		childInfo, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}

		listing.Add(toFileStat(data.JoinKey(key, entry.Name()), childInfo))
	}

	return listing.Entries(), nil
}

func (lb *LocalBackend) ReadObject(ctx context.Context, path string, opts backend.ReadOptions) (io.ReadCloser, error) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	key, fullPath, err := lb.resolve(path)
	if err != nil {
		return nil, err
	}
	if opts.Offset < 0 {
		return nil, data.NewPathError("read", key, data.ErrInvalid)
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, mapError("read", key, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, mapError("read", key, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, data.NewPathError("read", key, data.ErrIsDirectory)
	}

	if opts.Offset > 0 {
		if _, err := file.Seek(opts.Offset, io.SeekStart); err != nil {
			file.Close()
			return nil, mapError("read", key, err)
		}
	}

	return file, nil
}

// WriteObject opens the target synchronously so open failures are returned
// directly; the copy runs on the upload session.
func (lb *LocalBackend) WriteObject(ctx context.Context, path string, opts backend.WriteOptions) (*backend.UploadSession, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	key, fullPath, err := lb.resolve(path)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, data.NewPathError("write", key, data.ErrIsDirectory)
	}
	if opts.Offset < 0 {
		return nil, data.NewPathError("write", key, data.ErrInvalid)
	}

	if info, err := os.Stat(fullPath); err == nil && info.IsDir() {
		return nil, data.NewPathError("write", key, data.ErrIsDirectory)
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, mapError("write", key, err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	switch {
	case opts.Append:
		flags |= os.O_APPEND
	case opts.Offset == 0:
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(fullPath, flags, 0o644)
	if err != nil {
		return nil, mapError("write", key, err)
	}

	if !opts.Append && opts.Offset > 0 {
		if _, err := file.Seek(opts.Offset, io.SeekStart); err != nil {
			file.Close()
			return nil, mapError("write", key, err)
		}
	}

	lb.logger.Debug("Write: '%s' append=%t offset=%d", key, opts.Append, opts.Offset)

	return backend.StartUpload(ctx, key, lb.logger, func(ctx context.Context, r io.Reader) error {
		_, copyErr := io.Copy(file, r)
		closeErr := file.Close()
		if copyErr != nil {
			return copyErr
		}
		return closeErr
	}), nil
}

// DeleteObject fails for missing files and for directories.
func (lb *LocalBackend) DeleteObject(ctx context.Context, path string) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	key, fullPath, err := lb.resolve(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return mapError("delete", key, err)
	}
	if info.IsDir() {
		return data.NewPathError("delete", key, data.ErrIsDirectory)
	}

	if err := os.Remove(fullPath); err != nil {
		return mapError("delete", key, err)
	}

	return nil
}

// DeleteTree removes a directory recursively. The root itself is kept and
// only emptied.
func (lb *LocalBackend) DeleteTree(ctx context.Context, path string) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	key, fullPath, err := lb.resolve(path)
	if err != nil {
		return err
	}

	if _, err := os.Stat(fullPath); err != nil {
		return mapError("rmtree", key, err)
	}

	if key != "" {
		if err := os.RemoveAll(fullPath); err != nil {
			return mapError("rmtree", key, err)
		}
		return nil
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return mapError("rmtree", key, err)
	}

	errs := data.Errors{}
	for _, entry := range entries {
		errs.Add(os.RemoveAll(filepath.Join(fullPath, entry.Name())))
	}

	if err := errs.Errors(); err != nil {
		return mapError("rmtree", key, err)
	}
	return nil
}

// RenameObject uses os.Rename and is atomic within one filesystem.
func (lb *LocalBackend) RenameObject(ctx context.Context, from, to string) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	fromKey, fromPath, err := lb.resolve(from)
	if err != nil {
		return err
	}
	toKey, toPath, err := lb.resolve(to)
	if err != nil {
		return err
	}
	if fromKey == "" || toKey == "" {
		return &data.RenameError{From: fromKey, To: toKey, Err: data.ErrInvalidPath}
	}

	if err := os.MkdirAll(filepath.Dir(toPath), 0o755); err != nil {
		return &data.RenameError{From: fromKey, To: toKey, Err: mapError("rename", toKey, err)}
	}

	if err := os.Rename(fromPath, toPath); err != nil {
		return &data.RenameError{From: fromKey, To: toKey, Err: mapError("rename", fromKey, err)}
	}

	return nil
}

// EnsureDirectory creates path and missing parents. Names with ".."
// segments are rejected before resolution.
func (lb *LocalBackend) EnsureDirectory(ctx context.Context, path string) error {
	if data.HasDotDot(path) {
		return data.NewPathError("mkdir", path, data.ErrInvalidPath)
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	key, fullPath, err := lb.resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(fullPath, 0o755); err != nil {
		if info, statErr := os.Stat(fullPath); statErr == nil && !info.IsDir() {
			return data.NewPathError("mkdir", key, data.ErrNotDirectory)
		}
		return mapError("mkdir", key, err)
	}

	return nil
}
