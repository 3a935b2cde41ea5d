package azure

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
)

// StatObject treats any GetProperties failure as a directory, because
// virtual directories have no blob to query. A missing blob is therefore
// never reported as not found here.
func (ab *AzureBackend) StatObject(ctx context.Context, path string) (*data.FileStat, error) {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	key, err := ab.wd.Resolve(path)
	if err != nil {
		return nil, err
	}

	return ab.stat(ctx, key), nil
}

func (ab *AzureBackend) stat(ctx context.Context, key string) *data.FileStat {
	if key == "" {
		return data.NewDirStat("", time.Time{})
	}

	props, err := ab.client.NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		ab.logger.Warn("Stat: properties of '%s' unavailable, assuming directory: %v", key, err)
		return data.NewDirStat(key, time.Time{})
	}

	return propertiesToFileStat(key, props)
}

// ListObjects requests one page per call and follows NextMarker until the
// service returns an empty marker.
func (ab *AzureBackend) ListObjects(ctx context.Context, path string) ([]*data.FileStat, error) {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	key, err := ab.wd.Resolve(path)
	if err != nil {
		return nil, err
	}

	return ab.list(ctx, key)
}

func (ab *AzureBackend) list(ctx context.Context, key string) ([]*data.FileStat, error) {
	prefix := data.DirectoryPrefix(key)
	listing := backend.NewListing()

	var marker *string
	pages := 0
	for {
		pager := ab.client.NewListBlobsHierarchyPager(data.Separator, &container.ListBlobsHierarchyOptions{
			Prefix:     &prefix,
			Marker:     marker,
			MaxResults: &ab.cfg.PageSize,
		})

		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, data.Transport("list", key, err)
		}
		pages++

		if page.Segment != nil {
			for _, p := range page.Segment.BlobPrefixes {
				listing.Add(prefixToDirStat(p))
			}
			for _, item := range page.Segment.BlobItems {
				if deref(item.Name) == prefix {
					continue
				}
				listing.Add(itemToFileStat(item))
			}
		}

		if page.NextMarker == nil || *page.NextMarker == "" {
			break
		}
		marker = page.NextMarker
	}

	ab.logger.Debug("List: '%s' returned %d entries in %d pages", key, listing.Len(), pages)
	return listing.Entries(), nil
}

// listKeys returns every blob name below prefix without delimiter grouping.
func (ab *AzureBackend) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	var marker *string
	for {
		pager := ab.client.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
			Prefix:     &prefix,
			Marker:     marker,
			MaxResults: &ab.cfg.PageSize,
		})

		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, data.Transport("list", prefix, err)
		}

		if page.Segment != nil {
			for _, item := range page.Segment.BlobItems {
				keys = append(keys, deref(item.Name))
			}
		}

		if page.NextMarker == nil || *page.NextMarker == "" {
			return keys, nil
		}
		marker = page.NextMarker
	}
}

func (ab *AzureBackend) ReadObject(ctx context.Context, path string, opts backend.ReadOptions) (io.ReadCloser, error) {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	key, err := ab.wd.Resolve(path)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, data.NewPathError("read", key, data.ErrIsDirectory)
	}
	if opts.Offset < 0 {
		return nil, data.NewPathError("read", key, data.ErrInvalid)
	}

	resp, err := ab.client.NewBlobClient(key).DownloadStream(ctx, &blob.DownloadStreamOptions{
		Range: blob.HTTPRange{Offset: opts.Offset},
	})
	if err != nil {
		switch {
		case bloberror.HasCode(err, bloberror.BlobNotFound):
			return nil, data.NotExist("read", key)
		case bloberror.HasCode(err, bloberror.InvalidRange):
			return io.NopCloser(bytes.NewReader(nil)), nil
		default:
			return nil, data.Transport("read", key, err)
		}
	}

	return resp.Body, nil
}

// WriteObject stages blocks of BlockSize while the caller writes. Append
// and offsets are rejected.
func (ab *AzureBackend) WriteObject(ctx context.Context, path string, opts backend.WriteOptions) (*backend.UploadSession, error) {
	key, err := ab.wd.Resolve(path)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, data.NewPathError("write", key, data.ErrIsDirectory)
	}
	if err := backend.RejectPartialWrite(key, opts); err != nil {
		return nil, err
	}

	contentType := data.ContentTypeOf(key)
	client := ab.client.NewBlockBlobClient(key)

	ab.logger.Debug("Write: '%s' block size %d", key, ab.cfg.BlockSize)

	return backend.StartUpload(ctx, key, ab.logger, func(ctx context.Context, r io.Reader) error {
		_, err := client.UploadStream(ctx, r, &blockblob.UploadStreamOptions{
			BlockSize:   ab.cfg.BlockSize,
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		})
		if err != nil {
			return data.Transport("write", key, err)
		}
		return nil
	}), nil
}

// DeleteObject fails with not found for missing blobs.
func (ab *AzureBackend) DeleteObject(ctx context.Context, path string) error {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	key, err := ab.wd.Resolve(path)
	if err != nil {
		return err
	}
	if key == "" {
		return data.NewPathError("delete", key, data.ErrIsDirectory)
	}

	return ab.deleteKey(ctx, key)
}

func (ab *AzureBackend) deleteKey(ctx context.Context, key string) error {
	if _, err := ab.client.NewBlobClient(key).Delete(ctx, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return data.NotExist("delete", key)
		}
		return data.Transport("delete", key, err)
	}

	return nil
}

// DeleteTree walks the virtual directories and deletes blob by blob,
// including directory marker blobs.
func (ab *AzureBackend) DeleteTree(ctx context.Context, path string) error {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	key, err := ab.wd.Resolve(path)
	if err != nil {
		return err
	}

	return backend.RemoveTree(ctx, key, backend.TreeOps{
		List:       ab.list,
		RemoveFile: ab.deleteKey,
		RemoveDir:  ab.deleteMarker,
	})
}

// deleteMarker removes the zero-length "<key>/" blob some tools create for
// empty directories.
func (ab *AzureBackend) deleteMarker(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	err := ab.deleteKey(ctx, data.DirectoryPrefix(key))
	if errors.Is(err, data.ErrNotExist) {
		return nil
	}

	return err
}

// RenameObject starts a server-side copy, waits for it and deletes the
// source. Not atomic; see data.RenameError.
func (ab *AzureBackend) RenameObject(ctx context.Context, from, to string) error {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	fromKey, err := ab.wd.Resolve(from)
	if err != nil {
		return err
	}
	toKey, err := ab.wd.Resolve(to)
	if err != nil {
		return err
	}
	if fromKey == "" || toKey == "" || data.IsWithin(toKey, fromKey) {
		return &data.RenameError{From: fromKey, To: toKey, Err: data.ErrInvalidPath}
	}

	if _, err := ab.client.NewBlobClient(fromKey).GetProperties(ctx, nil); err == nil {
		return ab.renameKeys(ctx, fromKey, toKey, []string{fromKey}, func(key string) string { return toKey })
	} else if !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return &data.RenameError{From: fromKey, To: toKey, Err: data.Transport("rename", fromKey, err)}
	}

	oldPrefix := data.DirectoryPrefix(fromKey)
	newPrefix := data.DirectoryPrefix(toKey)

	keys, err := ab.listKeys(ctx, oldPrefix)
	if err != nil {
		return &data.RenameError{From: fromKey, To: toKey, Err: err}
	}
	if len(keys) == 0 {
		return &data.RenameError{From: fromKey, To: toKey, Err: data.NotExist("rename", fromKey)}
	}

	return ab.renameKeys(ctx, fromKey, toKey, keys, func(key string) string {
		return newPrefix + strings.TrimPrefix(key, oldPrefix)
	})
}

func (ab *AzureBackend) renameKeys(ctx context.Context, fromKey, toKey string, keys []string, target func(string) string) error {
	copied := 0
	for _, key := range keys {
		if err := ab.copyBlob(ctx, key, target(key)); err != nil {
			return &data.RenameError{From: fromKey, To: toKey, Copied: copied > 0, Err: err}
		}
		copied++
	}

	for _, key := range keys {
		if err := ab.deleteKey(ctx, key); err != nil {
			ab.logger.Warn("Rename: '%s' copied to '%s' but source removal failed: %v", fromKey, toKey, err)
			return &data.RenameError{From: fromKey, To: toKey, Copied: true, Err: err}
		}
	}

	ab.logger.Debug("Rename: '%s' moved %d blobs to '%s'", fromKey, len(keys), toKey)
	return nil
}

// copyBlob copies within the account and polls until the copy left the
// pending state.
func (ab *AzureBackend) copyBlob(ctx context.Context, src, dst string) error {
	source := ab.client.NewBlobClient(src)
	target := ab.client.NewBlobClient(dst)

	resp, err := target.StartCopyFromURL(ctx, source.URL(), nil)
	if err != nil {
		return data.Transport("copy", src, err)
	}

	status := deref(resp.CopyStatus)
	for status == blob.CopyStatusTypePending {
		select {
		case <-ctx.Done():
			return data.Transport("copy", src, ctx.Err())
		case <-time.After(ab.cfg.CopyPollInterval):
		}

		props, err := target.GetProperties(ctx, nil)
		if err != nil {
			return data.Transport("copy", src, err)
		}
		status = deref(props.CopyStatus)
	}

	if status != blob.CopyStatusTypeSuccess {
		return data.Transport("copy", src, errCopyStatus(status))
	}

	return nil
}

// EnsureDirectory is a no-op; virtual directories exist through their blobs.
func (ab *AzureBackend) EnsureDirectory(ctx context.Context, path string) error {
	_, err := ab.wd.Resolve(path)
	return err
}

// SignedURL issues a read-only SAS for a blob, valid for SignedURLTTL.
func (ab *AzureBackend) SignedURL(ctx context.Context, path string) (string, error) {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	key, err := ab.wd.Resolve(path)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", data.NewPathError("sign", key, data.ErrIsDirectory)
	}

	return ab.sign(key, ab.now())
}

func (ab *AzureBackend) sign(key string, now time.Time) (string, error) {
	protocol := sas.ProtocolHTTPS
	if !strings.HasPrefix(ab.cfg.Endpoint, "https://") {
		protocol = sas.ProtocolHTTPSandHTTP
	}

	params, err := sas.BlobSignatureValues{
		Protocol:      protocol,
		ExpiryTime:    now.Add(ab.cfg.SignedURLTTL).UTC(),
		Permissions:   (&sas.BlobPermissions{Read: true}).String(),
		ContainerName: ab.cfg.Container,
		BlobName:      key,
	}.SignWithSharedKey(ab.cred)
	if err != nil {
		return "", data.NewPathError("sign", key, err)
	}

	return ab.blobURL(key) + "?" + params.Encode(), nil
}
