package backend

import (
	"context"
	"io"

	"github.com/mwantia/unifs/data"
)

// ReadOptions controls ReadObject.
type ReadOptions struct {
	// Offset is the first byte returned. Backends fail instead of silently
	// starting at zero when they cannot honor it.
	Offset int64
}

// WriteOptions controls WriteObject.
type WriteOptions struct {
	// Append keeps the existing content and writes after it.
	Append bool
	// Offset overwrites starting at the given byte, keeping content before it.
	Offset int64
}

// Truncating reports whether the write replaces the whole object.
func (o WriteOptions) Truncating() bool {
	return !o.Append && o.Offset == 0
}

// RejectPartialWrite fails with ErrUnsupported for stores that can only
// replace whole objects.
func RejectPartialWrite(key string, opts WriteOptions) error {
	if opts.Append {
		return data.Unsupported("write", key, "append is not supported by this backend")
	}
	if opts.Offset > 0 {
		return data.Unsupported("write", key, "write offsets are not supported by this backend")
	}
	if opts.Offset < 0 {
		return data.NewPathError("write", key, data.ErrInvalid)
	}

	return nil
}

// ApplyWrite merges content into existing as an append or offset write.
// Gaps past the end are filled with zero bytes.
func ApplyWrite(existing, content []byte, opts WriteOptions) []byte {
	if opts.Truncating() {
		return content
	}

	offset := opts.Offset
	if opts.Append {
		offset = int64(len(existing))
	}

	size := max(offset+int64(len(content)), int64(len(existing)))

	buffer := make([]byte, size)
	copy(buffer, existing)
	copy(buffer[offset:], content)

	return buffer
}

// StorageBackend is the capability contract every storage variant fulfills.
// Paths are resolved against the per-instance working directory.
type StorageBackend interface {
	Backend

	// CurrentDirectory returns the absolute working directory, starting at "/".
	CurrentDirectory() string
	// ChangeDirectory resolves path and stores it as working directory.
	ChangeDirectory(ctx context.Context, path string) error

	// StatObject returns metadata for a single file or directory.
	StatObject(ctx context.Context, path string) (*data.FileStat, error)
	// ListObjects returns all direct children of a directory, directories first.
	ListObjects(ctx context.Context, path string) ([]*data.FileStat, error)

	// ReadObject returns a stream of the object content starting at opts.Offset.
	ReadObject(ctx context.Context, path string, opts ReadOptions) (io.ReadCloser, error)
	// WriteObject returns an upload session immediately. The content is
	// persisted concurrently; Close reports the persist result.
	WriteObject(ctx context.Context, path string, opts WriteOptions) (*UploadSession, error)

	// DeleteObject removes a single file.
	DeleteObject(ctx context.Context, path string) error
	// DeleteTree removes a directory and everything below it.
	DeleteTree(ctx context.Context, path string) error
	// RenameObject moves a file or directory. Unless the backend reports
	// CapabilityAtomicRename the move is a copy followed by a delete.
	RenameObject(ctx context.Context, from, to string) error
	// EnsureDirectory creates a directory where the store has real directories.
	EnsureDirectory(ctx context.Context, path string) error
}

// URLSigner is implemented by backends able to issue time-limited,
// read-only download URLs.
type URLSigner interface {
	SignedURL(ctx context.Context, path string) (string, error)
}

// SignedURL asks b for a download URL. ok is false when the backend has no
// signing capability, which is not an error.
func SignedURL(ctx context.Context, b StorageBackend, path string) (url string, ok bool, err error) {
	signer, ok := b.(URLSigner)
	if !ok {
		return "", false, nil
	}

	url, err = signer.SignedURL(ctx, path)
	return url, true, err
}
