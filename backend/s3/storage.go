package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
	"golang.org/x/sync/errgroup"
)

// StatObject heads the key. A missing key that is a non-empty prefix is
// reported as directory.
func (sb *S3Backend) StatObject(ctx context.Context, path string) (*data.FileStat, error) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	key, err := sb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}

	return sb.stat(ctx, key)
}

func (sb *S3Backend) stat(ctx context.Context, key string) (*data.FileStat, error) {
	if key == "" {
		return data.NewDirStat("", time.Time{}), nil
	}

	info, err := sb.client.StatObject(ctx, sb.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return toFileStat(info), nil
	}
	if !isNotFound(err) {
		return nil, data.Transport("stat", key, err)
	}

	isDir, err := sb.hasPrefix(ctx, key)
	if err != nil {
		return nil, err
	}
	if isDir {
		return data.NewDirStat(key, time.Time{}), nil
	}

	return nil, data.NotExist("stat", key)
}

// hasPrefix reports whether at least one key lives below key.
func (sb *S3Backend) hasPrefix(ctx context.Context, key string) (bool, error) {
	prefix := data.DirectoryPrefix(key)

	result, err := sb.core.ListObjectsV2(sb.bucket, prefix, "", "", data.Separator, 1)
	if err != nil {
		return false, data.Transport("stat", key, err)
	}

	return len(result.CommonPrefixes) > 0 || len(result.Contents) > 0, nil
}

// ListObjects follows continuation tokens until the listing is exhausted.
func (sb *S3Backend) ListObjects(ctx context.Context, path string) ([]*data.FileStat, error) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	key, err := sb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}

	return sb.list(ctx, key)
}

func (sb *S3Backend) list(ctx context.Context, key string) ([]*data.FileStat, error) {
	prefix := data.DirectoryPrefix(key)
	listing := backend.NewListing()

	token := ""
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, data.Transport("list", key, err)
		}

		result, err := sb.core.ListObjectsV2(sb.bucket, prefix, "", token, data.Separator, sb.cfg.PageSize)
		if err != nil {
			return nil, data.Transport("list", key, err)
		}
		pages++

		for _, common := range result.CommonPrefixes {
			listing.Add(toDirStat(common.Prefix))
		}
		for _, object := range result.Contents {
			// Directory marker of the listed prefix itself
			if object.Key == prefix {
				continue
			}
			listing.Add(toFileStat(object))
		}

		if !result.IsTruncated || result.NextContinuationToken == "" {
			break
		}
		token = result.NextContinuationToken
	}

	sb.logger.Debug("List: '%s' returned %d entries in %d pages", key, listing.Len(), pages)
	return listing.Entries(), nil
}

// ReadObject requests "bytes=<offset>-" when an offset is given.
func (sb *S3Backend) ReadObject(ctx context.Context, path string, opts backend.ReadOptions) (io.ReadCloser, error) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	key, err := sb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, data.NewPathError("read", key, data.ErrIsDirectory)
	}
	if opts.Offset < 0 {
		return nil, data.NewPathError("read", key, data.ErrInvalid)
	}

	getOpts := minio.GetObjectOptions{}
	if opts.Offset > 0 {
		if err := getOpts.SetRange(opts.Offset, 0); err != nil {
			return nil, data.NewPathError("read", key, err)
		}
	}

	object, err := sb.client.GetObject(ctx, sb.bucket, key, getOpts)
	if err != nil {
		return nil, data.Transport("read", key, err)
	}

	// GetObject is lazy; Stat forces the request so errors surface here.
	if _, err := object.Stat(); err != nil {
		object.Close()

		switch {
		case isNotFound(err):
			if isDir, probeErr := sb.hasPrefix(ctx, key); probeErr == nil && isDir {
				return nil, data.NewPathError("read", key, data.ErrIsDirectory)
			}
			return nil, data.NotExist("read", key)
		case minio.ToErrorResponse(err).Code == "InvalidRange":
			// Offset at or beyond the end of the object
			return io.NopCloser(bytes.NewReader(nil)), nil
		default:
			return nil, data.Transport("read", key, err)
		}
	}

	return object, nil
}

// WriteObject streams the upload with unknown size in PartSize chunks.
// Append and offsets are rejected.
func (sb *S3Backend) WriteObject(ctx context.Context, path string, opts backend.WriteOptions) (*backend.UploadSession, error) {
	key, err := sb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, data.NewPathError("write", key, data.ErrIsDirectory)
	}
	if err := backend.RejectPartialWrite(key, opts); err != nil {
		return nil, err
	}

	putOpts := minio.PutObjectOptions{
		ContentType: data.ContentTypeOf(key),
		PartSize:    sb.cfg.PartSize,
	}

	sb.logger.Debug("Write: '%s' part size %d", key, putOpts.PartSize)

	return backend.StartUpload(ctx, key, sb.logger, func(ctx context.Context, r io.Reader) error {
		if _, err := sb.client.PutObject(ctx, sb.bucket, key, r, -1, putOpts); err != nil {
			return data.Transport("write", key, err)
		}
		return nil
	}), nil
}

// DeleteObject is idempotent; deleting a missing key succeeds.
func (sb *S3Backend) DeleteObject(ctx context.Context, path string) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	key, err := sb.wd.Resolve(path)
	if err != nil {
		return err
	}
	if key == "" {
		return data.NewPathError("delete", key, data.ErrIsDirectory)
	}

	if err := sb.client.RemoveObject(ctx, sb.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return data.Transport("delete", key, err)
	}

	return nil
}

// DeleteTree feeds a recursive listing into the batch delete API.
func (sb *S3Backend) DeleteTree(ctx context.Context, path string) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	key, err := sb.wd.Resolve(path)
	if err != nil {
		return err
	}

	prefix := data.DirectoryPrefix(key)
	errs := data.Errors{}

	objects := make(chan minio.ObjectInfo)
	go func() {
		defer close(objects)

		for object := range sb.client.ListObjects(ctx, sb.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if object.Err != nil {
				errs.Add(data.Transport("rmtree", key, object.Err))
				return
			}
			objects <- object
		}
	}()

	failed := 0
	for result := range sb.client.RemoveObjects(ctx, sb.bucket, objects, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			errs.Add(data.Transport("rmtree", result.ObjectName, result.Err))
			failed++
		}
	}

	sb.logger.Debug("DeleteTree: '%s' finished with %d failed objects", key, failed)
	return errs.Errors()
}

// RenameObject copies server-side and deletes the source afterwards. The
// operation is not atomic; see data.RenameError.
func (sb *S3Backend) RenameObject(ctx context.Context, from, to string) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	fromKey, err := sb.wd.Resolve(from)
	if err != nil {
		return err
	}
	toKey, err := sb.wd.Resolve(to)
	if err != nil {
		return err
	}
	if fromKey == "" || toKey == "" || data.IsWithin(toKey, fromKey) {
		return &data.RenameError{From: fromKey, To: toKey, Err: data.ErrInvalidPath}
	}

	stat, err := sb.stat(ctx, fromKey)
	if err != nil {
		return &data.RenameError{From: fromKey, To: toKey, Err: err}
	}

	if !stat.IsDir() {
		return sb.renameFile(ctx, fromKey, toKey)
	}

	return sb.renamePrefix(ctx, fromKey, toKey)
}

func (sb *S3Backend) renameFile(ctx context.Context, fromKey, toKey string) error {
	src := minio.CopySrcOptions{Bucket: sb.bucket, Object: fromKey}
	dst := minio.CopyDestOptions{Bucket: sb.bucket, Object: toKey}

	if _, err := sb.client.CopyObject(ctx, dst, src); err != nil {
		return &data.RenameError{From: fromKey, To: toKey, Err: data.Transport("rename", fromKey, err)}
	}

	if err := sb.client.RemoveObject(ctx, sb.bucket, fromKey, minio.RemoveObjectOptions{}); err != nil {
		sb.logger.Warn("Rename: '%s' copied to '%s' but source removal failed: %v", fromKey, toKey, err)
		return &data.RenameError{From: fromKey, To: toKey, Copied: true, Err: data.Transport("rename", fromKey, err)}
	}

	return nil
}

// renamePrefix copies every object below fromKey in parallel, then batch
// deletes the copied sources.
func (sb *S3Backend) renamePrefix(ctx context.Context, fromKey, toKey string) error {
	oldPrefix := data.DirectoryPrefix(fromKey)
	newPrefix := data.DirectoryPrefix(toKey)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sb.cfg.Concurrency)

	var copiedMu sync.Mutex
	var copied []string

	var listErr error
	for object := range sb.client.ListObjects(gctx, sb.bucket, minio.ListObjectsOptions{
		Prefix:    oldPrefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			listErr = object.Err
			break
		}

		objectKey := object.Key
		g.Go(func() error {
			newKey := newPrefix + strings.TrimPrefix(objectKey, oldPrefix)

			src := minio.CopySrcOptions{Bucket: sb.bucket, Object: objectKey}
			dst := minio.CopyDestOptions{Bucket: sb.bucket, Object: newKey}
			if _, err := sb.client.CopyObject(gctx, dst, src); err != nil {
				return data.Transport("rename", objectKey, err)
			}

			copiedMu.Lock()
			copied = append(copied, objectKey)
			copiedMu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err == nil && listErr != nil {
		err = data.Transport("rename", fromKey, listErr)
	}
	if err != nil {
		return &data.RenameError{From: fromKey, To: toKey, Copied: len(copied) > 0, Err: err}
	}

	toDelete := make(chan minio.ObjectInfo, len(copied))
	for _, key := range copied {
		toDelete <- minio.ObjectInfo{Key: key}
	}
	close(toDelete)

	errs := data.Errors{}
	for result := range sb.client.RemoveObjects(ctx, sb.bucket, toDelete, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			errs.Add(data.Transport("rename", result.ObjectName, result.Err))
		}
	}

	if err := errs.Errors(); err != nil {
		sb.logger.Warn("Rename: prefix '%s' copied to '%s' but %d sources remain", fromKey, toKey, errs.Len())
		return &data.RenameError{From: fromKey, To: toKey, Copied: true, Err: err}
	}

	sb.logger.Debug("Rename: prefix '%s' moved %d objects to '%s'", fromKey, len(copied), toKey)
	return nil
}

// EnsureDirectory is a no-op; prefixes exist implicitly.
func (sb *S3Backend) EnsureDirectory(ctx context.Context, path string) error {
	_, err := sb.wd.Resolve(path)
	return err
}
