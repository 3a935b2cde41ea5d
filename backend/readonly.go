package backend

import (
	"context"

	"github.com/mwantia/unifs/data"
)

// ReadOnly wraps b so that every read operation is passed through and every
// mutating operation fails with ErrPermission. Signing stays available when
// b supports it.
func ReadOnly(b StorageBackend) StorageBackend {
	rob := &readOnlyBackend{StorageBackend: b}
	if signer, ok := b.(URLSigner); ok {
		return &readOnlySigner{readOnlyBackend: rob, signer: signer}
	}
	return rob
}

type readOnlyBackend struct {
	StorageBackend
}

type readOnlySigner struct {
	*readOnlyBackend
	signer URLSigner
}

func (ros *readOnlySigner) SignedURL(ctx context.Context, path string) (string, error) {
	return ros.signer.SignedURL(ctx, path)
}

func (rob *readOnlyBackend) GetCapabilities() *BackendCapabilities {
	caps := rob.StorageBackend.GetCapabilities()

	filtered := &BackendCapabilities{}
	for _, capability := range caps.Capabilities {
		switch capability {
		case CapabilityAppend, CapabilityOffsetWrite, CapabilityPrefixDelete, CapabilityAtomicRename:
			continue
		}
		filtered.Capabilities = append(filtered.Capabilities, capability)
	}
	filtered.MinObjectSize = caps.MinObjectSize
	filtered.MaxObjectSize = caps.MaxObjectSize

	return filtered
}

func (rob *readOnlyBackend) WriteObject(ctx context.Context, path string, opts WriteOptions) (*UploadSession, error) {
	return nil, data.NewPathError("write", path, data.ErrPermission)
}

func (rob *readOnlyBackend) DeleteObject(ctx context.Context, path string) error {
	return data.NewPathError("delete", path, data.ErrPermission)
}

func (rob *readOnlyBackend) DeleteTree(ctx context.Context, path string) error {
	return data.NewPathError("delete", path, data.ErrPermission)
}

func (rob *readOnlyBackend) RenameObject(ctx context.Context, from, to string) error {
	return data.NewPathError("rename", from, data.ErrPermission)
}

func (rob *readOnlyBackend) EnsureDirectory(ctx context.Context, path string) error {
	return data.NewPathError("mkdir", path, data.ErrPermission)
}
