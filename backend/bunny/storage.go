package bunny

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
)

// storageObject is one entry of a directory listing response.
type storageObject struct {
	ObjectName  string    `json:"ObjectName"`
	Path        string    `json:"Path"`
	Length      int64     `json:"Length"`
	IsDirectory bool      `json:"IsDirectory"`
	ContentType string    `json:"ContentType"`
	Checksum    string    `json:"Checksum"`
	LastChanged bunnyTime `json:"LastChanged"`
	DateCreated bunnyTime `json:"DateCreated"`
}

// bunnyTime parses the zone-less UTC timestamps of the API.
type bunnyTime struct {
	time.Time
}

func (bt *bunnyTime) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == "" {
		return nil
	}

	parsed, err := time.ParseInLocation("2006-01-02T15:04:05", strings.TrimSuffix(raw, "Z"), time.UTC)
	if err != nil {
		return fmt.Errorf("invalid timestamp '%s': %w", raw, err)
	}

	bt.Time = parsed
	return nil
}

func toFileStat(dir string, obj storageObject) *data.FileStat {
	key := data.JoinKey(dir, obj.ObjectName)
	if obj.IsDirectory {
		stat := data.NewDirStat(key, obj.LastChanged.Time)
		stat.CreateTime = obj.DateCreated.Time
		return stat
	}

	stat := data.NewFileStat(key, obj.Length, obj.LastChanged.Time)
	stat.CreateTime = obj.DateCreated.Time
	stat.ETag = strings.ToLower(obj.Checksum)
	if obj.ContentType != "" {
		stat.ContentType = obj.ContentType
	}

	return stat
}

// StatObject matches the base name against the parent listing, served from
// the listing cache. Results can be stale for up to the cache TTL.
func (bb *BunnyBackend) StatObject(ctx context.Context, path string) (*data.FileStat, error) {
	bb.mu.RLock()
	defer bb.mu.RUnlock()

	key, err := bb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}

	return bb.stat(ctx, key)
}

func (bb *BunnyBackend) stat(ctx context.Context, key string) (*data.FileStat, error) {
	if key == "" {
		return data.NewDirStat("", time.Time{}), nil
	}

	parent := data.ParentKey(key)
	name := data.BaseName(key)

	if stat, cached := bb.cache.Find(bb.namespace(), parent, name); cached {
		if stat == nil {
			return nil, data.NotExist("stat", key)
		}
		return stat, nil
	}

	entries, err := bb.list(ctx, parent)
	if err != nil {
		if errors.Is(err, data.ErrNotExist) {
			return nil, data.NotExist("stat", key)
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.Name == name {
			return entry, nil
		}
	}

	return nil, data.NotExist("stat", key)
}

// ListObjects always queries the API and refreshes the cached listing.
// The API returns a directory in a single response.
func (bb *BunnyBackend) ListObjects(ctx context.Context, path string) ([]*data.FileStat, error) {
	bb.mu.RLock()
	defer bb.mu.RUnlock()

	key, err := bb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}

	return bb.list(ctx, key)
}

func (bb *BunnyBackend) list(ctx context.Context, key string) ([]*data.FileStat, error) {
	entries, err := bb.fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	bb.cache.Put(bb.namespace(), key, entries)
	return entries, nil
}

// fetch requests the listing of key without touching the cache.
func (bb *BunnyBackend) fetch(ctx context.Context, key string) ([]*data.FileStat, error) {
	req, err := bb.newRequest(ctx, http.MethodGet, bb.objectURL(key, true), nil)
	if err != nil {
		return nil, data.Transport("list", key, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := bb.client.Do(req)
	if err != nil {
		return nil, data.Transport("list", key, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list", key, resp)
	}
	defer resp.Body.Close()

	var objects []storageObject
	if err := json.NewDecoder(resp.Body).Decode(&objects); err != nil {
		return nil, data.Transport("list", key, err)
	}

	listing := backend.NewListing()
	for _, obj := range objects {
		listing.Add(toFileStat(key, obj))
	}

	entries := listing.Entries()
	bb.logger.Debug("List: '%s' returned %d entries", key, len(entries))
	return entries, nil
}

// ReadObject sends a range request for offsets above zero. A server that
// answers a range request with the full body fails the read.
func (bb *BunnyBackend) ReadObject(ctx context.Context, path string, opts backend.ReadOptions) (io.ReadCloser, error) {
	bb.mu.RLock()
	defer bb.mu.RUnlock()

	key, err := bb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, data.NewPathError("read", key, data.ErrIsDirectory)
	}
	if opts.Offset < 0 {
		return nil, data.NewPathError("read", key, data.ErrInvalid)
	}

	return bb.open(ctx, key, opts.Offset)
}

func (bb *BunnyBackend) open(ctx context.Context, key string, offset int64) (io.ReadCloser, error) {
	req, err := bb.newRequest(ctx, http.MethodGet, bb.objectURL(key, false), nil)
	if err != nil {
		return nil, data.Transport("read", key, err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := bb.client.Do(req)
	if err != nil {
		return nil, data.Transport("read", key, err)
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return resp.Body, nil
	case http.StatusOK:
		if offset > 0 {
			resp.Body.Close()
			return nil, data.Unsupported("read", key, "server ignored the range request")
		}
		return resp.Body, nil
	case http.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()
		return io.NopCloser(bytes.NewReader(nil)), nil
	default:
		return nil, statusError("read", key, resp)
	}
}

// WriteObject streams the upload as a single PUT request. Append and
// offsets are rejected.
func (bb *BunnyBackend) WriteObject(ctx context.Context, path string, opts backend.WriteOptions) (*backend.UploadSession, error) {
	key, err := bb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, data.NewPathError("write", key, data.ErrIsDirectory)
	}
	if err := backend.RejectPartialWrite(key, opts); err != nil {
		return nil, err
	}

	bb.logger.Debug("Write: '%s' started", key)

	return backend.StartUpload(ctx, key, bb.logger, func(ctx context.Context, r io.Reader) error {
		return bb.put(ctx, key, r)
	}), nil
}

func (bb *BunnyBackend) put(ctx context.Context, key string, r io.Reader) error {
	req, err := bb.newRequest(ctx, http.MethodPut, bb.objectURL(key, false), r)
	if err != nil {
		return data.Transport("write", key, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := bb.client.Do(req)
	if err != nil {
		return data.Transport("write", key, err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return statusError("write", key, resp)
	}

	return resp.Body.Close()
}

// DeleteObject fails with not found when the API answers 404.
func (bb *BunnyBackend) DeleteObject(ctx context.Context, path string) error {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	key, err := bb.wd.Resolve(path)
	if err != nil {
		return err
	}
	if key == "" {
		return data.NewPathError("delete", key, data.ErrIsDirectory)
	}

	return bb.deleteKey(ctx, key)
}

func (bb *BunnyBackend) deleteKey(ctx context.Context, key string) error {
	return bb.delete(ctx, key, false)
}

func (bb *BunnyBackend) delete(ctx context.Context, key string, dir bool) error {
	req, err := bb.newRequest(ctx, http.MethodDelete, bb.objectURL(key, dir), nil)
	if err != nil {
		return data.Transport("delete", key, err)
	}

	resp, err := bb.client.Do(req)
	if err != nil {
		return data.Transport("delete", key, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("delete", key, resp)
	}

	return resp.Body.Close()
}

// DeleteTree deletes the directory with a single request on its
// "/"-terminated path. When the endpoint rejects directory deletes, the
// tree is removed entry by entry.
func (bb *BunnyBackend) DeleteTree(ctx context.Context, path string) error {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	key, err := bb.wd.Resolve(path)
	if err != nil {
		return err
	}

	if key != "" {
		err := bb.delete(ctx, key, true)
		if err == nil || errors.Is(err, data.ErrNotExist) {
			return nil
		}
		if !rejectsDirectoryDelete(err) {
			return err
		}

		bb.logger.Warn("DeleteTree: directory delete of '%s' rejected, deleting per entry: %v", key, err)
	}

	err = backend.RemoveTree(ctx, key, backend.TreeOps{
		List:       bb.list,
		RemoveFile: bb.deleteKey,
		RemoveDir:  bb.deleteEmptyDirectory,
	})
	if errors.Is(err, data.ErrNotExist) {
		return nil
	}

	return err
}

// deleteEmptyDirectory removes a directory entry left behind once its files
// are gone. The storage zone root is never deleted.
func (bb *BunnyBackend) deleteEmptyDirectory(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	err := bb.delete(ctx, key, true)
	if err == nil || errors.Is(err, data.ErrNotExist) {
		return nil
	}
	if rejectsDirectoryDelete(err) {
		bb.logger.Debug("DeleteTree: keeping empty directory '%s': %v", key, err)
		return nil
	}

	return err
}

func rejectsDirectoryDelete(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}

	switch se.Status {
	case http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return true
	}
	return false
}

// RenameObject copies by streaming the download into an upload, then
// deletes the source. Directories are moved file by file. Not atomic; see
// data.RenameError.
func (bb *BunnyBackend) RenameObject(ctx context.Context, from, to string) error {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	fromKey, err := bb.wd.Resolve(from)
	if err != nil {
		return err
	}
	toKey, err := bb.wd.Resolve(to)
	if err != nil {
		return err
	}
	if fromKey == "" || toKey == "" || data.IsWithin(toKey, fromKey) {
		return &data.RenameError{From: fromKey, To: toKey, Err: data.ErrInvalidPath}
	}

	source, err := bb.stat(ctx, fromKey)
	if err != nil {
		return &data.RenameError{From: fromKey, To: toKey, Err: err}
	}

	if !source.IsDir() {
		if err := bb.copyObject(ctx, fromKey, toKey); err != nil {
			return &data.RenameError{From: fromKey, To: toKey, Err: err}
		}
		if err := bb.deleteKey(ctx, fromKey); err != nil {
			return &data.RenameError{From: fromKey, To: toKey, Copied: true, Err: err}
		}
		return nil
	}

	moved, err := bb.moveTree(ctx, fromKey, toKey)
	if err != nil {
		return &data.RenameError{From: fromKey, To: toKey, Copied: moved > 0, Err: err}
	}

	if err := bb.delete(ctx, fromKey, true); err != nil && !errors.Is(err, data.ErrNotExist) {
		bb.logger.Warn("Rename: '%s' moved but removing the source directory failed: %v", fromKey, err)
	}

	bb.logger.Debug("Rename: '%s' moved %d objects to '%s'", fromKey, moved, toKey)
	return nil
}

// moveTree moves every file below fromKey to the same relative key below
// toKey and returns the number of moved files.
func (bb *BunnyBackend) moveTree(ctx context.Context, fromKey, toKey string) (int, error) {
	moved := 0
	pending := []string{fromKey}

	for len(pending) > 0 {
		dir := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		entries, err := bb.list(ctx, dir)
		if err != nil {
			return moved, err
		}

		for _, entry := range entries {
			if entry.IsDir() {
				pending = append(pending, entry.Key)
				continue
			}

			target := data.JoinKey(toKey, strings.TrimPrefix(entry.Key, data.DirectoryPrefix(fromKey)))
			if err := bb.copyObject(ctx, entry.Key, target); err != nil {
				return moved, err
			}
			if err := bb.deleteKey(ctx, entry.Key); err != nil {
				return moved + 1, err
			}
			moved++
		}
	}

	return moved, nil
}

func (bb *BunnyBackend) copyObject(ctx context.Context, src, dst string) error {
	reader, err := bb.open(ctx, src, 0)
	if err != nil {
		return err
	}
	defer reader.Close()

	return bb.put(ctx, dst, reader)
}

// EnsureDirectory is a no-op; directories are created with their first file.
func (bb *BunnyBackend) EnsureDirectory(ctx context.Context, path string) error {
	_, err := bb.wd.Resolve(path)
	return err
}
