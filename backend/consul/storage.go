package consul

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
)

// ErrConflict is returned when a partial write lost every check-and-set
// attempt against concurrent writers.
var ErrConflict = errors.New("unifs: concurrent modification")

func toFileStat(key string, pair *api.KVPair) *data.FileStat {
	modified := time.Time{}
	if pair.Flags > 0 {
		modified = time.Unix(int64(pair.Flags), 0)
	}

	stat := data.NewFileStat(key, int64(len(pair.Value)), modified)
	stat.CreateTime = modified
	stat.ETag = fmt.Sprintf("%d", pair.ModifyIndex)

	return stat
}

func (cb *ConsulBackend) StatObject(ctx context.Context, path string) (*data.FileStat, error) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	key, err := cb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}

	return cb.stat(ctx, key)
}

// stat reports a key without value but with children as a directory.
func (cb *ConsulBackend) stat(ctx context.Context, key string) (*data.FileStat, error) {
	if key == "" {
		return data.NewDirStat("", time.Time{}), nil
	}

	pair, _, err := cb.kv.Get(cb.buildKey(key), cb.queryOptions(ctx))
	if err != nil {
		return nil, data.Transport("stat", key, err)
	}
	if pair != nil {
		return toFileStat(key, pair), nil
	}

	isDir, err := cb.hasChildren(ctx, key)
	if err != nil {
		return nil, err
	}
	if isDir {
		return data.NewDirStat(key, time.Time{}), nil
	}

	return nil, data.NotExist("stat", key)
}

func (cb *ConsulBackend) hasChildren(ctx context.Context, key string) (bool, error) {
	keys, _, err := cb.kv.Keys(cb.buildPrefix(key), data.Separator, cb.queryOptions(ctx))
	if err != nil {
		return false, data.Transport("stat", key, err)
	}

	return len(keys) > 0, nil
}

// ListObjects groups a recursive listing one level below the directory.
func (cb *ConsulBackend) ListObjects(ctx context.Context, path string) ([]*data.FileStat, error) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	key, err := cb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}

	return cb.list(ctx, key)
}

func (cb *ConsulBackend) list(ctx context.Context, key string) ([]*data.FileStat, error) {
	prefix := cb.buildPrefix(key)

	pairs, _, err := cb.kv.List(prefix, cb.queryOptions(ctx))
	if err != nil {
		return nil, data.Transport("list", key, err)
	}

	listing := backend.NewListing()
	for _, pair := range pairs {
		rest := strings.TrimPrefix(pair.Key, prefix)
		if rest == "" {
			continue
		}

		if name, _, nested := strings.Cut(rest, data.Separator); nested {
			listing.Add(data.NewDirStat(data.JoinKey(key, name), time.Time{}))
			continue
		}

		listing.Add(toFileStat(data.JoinKey(key, rest), pair))
	}

	cb.logger.Debug("List: '%s' returned %d entries from %d pairs", key, listing.Len(), len(pairs))
	return listing.Entries(), nil
}

func (cb *ConsulBackend) ReadObject(ctx context.Context, path string, opts backend.ReadOptions) (io.ReadCloser, error) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	key, err := cb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}
	if opts.Offset < 0 {
		return nil, data.NewPathError("read", key, data.ErrInvalid)
	}

	pair, err := cb.get(ctx, "read", key)
	if err != nil {
		return nil, err
	}

	value := pair.Value
	if opts.Offset >= int64(len(value)) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	return io.NopCloser(bytes.NewReader(value[opts.Offset:])), nil
}

// get returns the pair of a file key, failing for directories and
// missing keys.
func (cb *ConsulBackend) get(ctx context.Context, op, key string) (*api.KVPair, error) {
	if key == "" {
		return nil, data.NewPathError(op, key, data.ErrIsDirectory)
	}

	pair, _, err := cb.kv.Get(cb.buildKey(key), cb.queryOptions(ctx))
	if err != nil {
		return nil, data.Transport(op, key, err)
	}
	if pair != nil {
		return pair, nil
	}

	isDir, err := cb.hasChildren(ctx, key)
	if err != nil {
		return nil, err
	}
	if isDir {
		return nil, data.NewPathError(op, key, data.ErrIsDirectory)
	}

	return nil, data.NotExist(op, key)
}

// WriteObject buffers the upload and stores it on Close. Append and
// offset writes merge with the stored value through check-and-set.
func (cb *ConsulBackend) WriteObject(ctx context.Context, path string, opts backend.WriteOptions) (*backend.UploadSession, error) {
	key, err := cb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, data.NewPathError("write", key, data.ErrIsDirectory)
	}
	if opts.Offset < 0 {
		return nil, data.NewPathError("write", key, data.ErrInvalid)
	}

	return backend.StartUpload(ctx, key, cb.logger, func(ctx context.Context, r io.Reader) error {
		content, err := io.ReadAll(r)
		if err != nil {
			return err
		}

		cb.mu.Lock()
		defer cb.mu.Unlock()

		if err := cb.checkPlacement(ctx, key); err != nil {
			return err
		}
		if opts.Truncating() {
			return cb.put(ctx, key, content)
		}
		return cb.merge(ctx, key, content, opts)
	}), nil
}

// checkPlacement fails when a file occupies an ancestor of key or when key
// already holds children.
func (cb *ConsulBackend) checkPlacement(ctx context.Context, key string) error {
	for parent := data.ParentKey(key); parent != ""; parent = data.ParentKey(parent) {
		pair, _, err := cb.kv.Get(cb.buildKey(parent), cb.queryOptions(ctx))
		if err != nil {
			return data.Transport("write", parent, err)
		}
		if pair != nil {
			return data.NewPathError("write", key, data.ErrNotDirectory)
		}
	}

	isDir, err := cb.hasChildren(ctx, key)
	if err != nil {
		return err
	}
	if isDir {
		return data.NewPathError("write", key, data.ErrIsDirectory)
	}

	return nil
}

func (cb *ConsulBackend) put(ctx context.Context, key string, content []byte) error {
	pair := &api.KVPair{
		Key:   cb.buildKey(key),
		Value: content,
		Flags: uint64(time.Now().Unix()),
	}

	if _, err := cb.kv.Put(pair, cb.writeOptions(ctx)); err != nil {
		return data.Transport("write", key, err)
	}

	cb.logger.Debug("Write: '%s' stored %d bytes", key, len(content))
	return nil
}

func (cb *ConsulBackend) merge(ctx context.Context, key string, content []byte, opts backend.WriteOptions) error {
	full := cb.buildKey(key)

	for attempt := 1; attempt <= MaxCASAttempts; attempt++ {
		pair, _, err := cb.kv.Get(full, cb.queryOptions(ctx))
		if err != nil {
			return data.Transport("write", key, err)
		}

		var existing []byte
		var index uint64
		if pair != nil {
			existing = pair.Value
			index = pair.ModifyIndex
		}

		ok, _, err := cb.kv.CAS(&api.KVPair{
			Key:         full,
			Value:       backend.ApplyWrite(existing, content, opts),
			Flags:       uint64(time.Now().Unix()),
			ModifyIndex: index,
		}, cb.writeOptions(ctx))
		if err != nil {
			return data.Transport("write", key, err)
		}
		if ok {
			return nil
		}

		cb.logger.Debug("Write: '%s' lost check-and-set attempt %d", key, attempt)
	}

	return data.NewPathError("write", key, ErrConflict)
}

// DeleteObject fails with not found for missing keys.
func (cb *ConsulBackend) DeleteObject(ctx context.Context, path string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	key, err := cb.wd.Resolve(path)
	if err != nil {
		return err
	}

	if _, err := cb.get(ctx, "delete", key); err != nil {
		return err
	}

	if _, err := cb.kv.Delete(cb.buildKey(key), cb.writeOptions(ctx)); err != nil {
		return data.Transport("delete", key, err)
	}

	return nil
}

// DeleteTree removes the key itself and every key below it.
func (cb *ConsulBackend) DeleteTree(ctx context.Context, path string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	key, err := cb.wd.Resolve(path)
	if err != nil {
		return err
	}

	if key != "" {
		if _, err := cb.kv.Delete(cb.buildKey(key), cb.writeOptions(ctx)); err != nil {
			return data.Transport("delete", key, err)
		}
	}

	if _, err := cb.kv.DeleteTree(cb.buildPrefix(key), cb.writeOptions(ctx)); err != nil {
		return data.Transport("delete", key, err)
	}

	cb.logger.Debug("DeleteTree: '%s' removed", key)
	return nil
}

// RenameObject moves keys inside transactions. Moves of up to MaxTxnOps/2
// keys are atomic; larger directories commit in several transactions.
func (cb *ConsulBackend) RenameObject(ctx context.Context, from, to string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	fromKey, err := cb.wd.Resolve(from)
	if err != nil {
		return err
	}
	toKey, err := cb.wd.Resolve(to)
	if err != nil {
		return err
	}
	if fromKey == "" || toKey == "" || data.IsWithin(toKey, fromKey) {
		return &data.RenameError{From: fromKey, To: toKey, Err: data.ErrInvalidPath}
	}

	pairs, err := cb.collect(ctx, fromKey)
	if err != nil {
		return &data.RenameError{From: fromKey, To: toKey, Err: err}
	}
	if len(pairs) == 0 {
		return &data.RenameError{From: fromKey, To: toKey, Err: data.NotExist("rename", fromKey)}
	}

	source := cb.buildKey(fromKey)
	target := cb.buildKey(toKey)

	committed := 0
	for start := 0; start < len(pairs); start += MaxTxnOps / 2 {
		end := min(start+MaxTxnOps/2, len(pairs))

		ops := make(api.TxnOps, 0, 2*(end-start))
		for _, pair := range pairs[start:end] {
			ops = append(ops,
				&api.TxnOp{KV: &api.KVTxnOp{
					Verb:  api.KVSet,
					Key:   target + strings.TrimPrefix(pair.Key, source),
					Value: pair.Value,
					Flags: pair.Flags,
				}},
				&api.TxnOp{KV: &api.KVTxnOp{
					Verb:  api.KVDeleteCAS,
					Key:   pair.Key,
					Index: pair.ModifyIndex,
				}},
			)
		}

		if err := cb.txn(ctx, fromKey, ops); err != nil {
			return &data.RenameError{From: fromKey, To: toKey, Copied: committed > 0, Err: err}
		}
		committed += end - start
	}

	cb.logger.Debug("Rename: '%s' moved %d keys to '%s'", fromKey, committed, toKey)
	return nil
}

// collect returns the pair of a file key, or every pair below a directory.
func (cb *ConsulBackend) collect(ctx context.Context, key string) (api.KVPairs, error) {
	pair, _, err := cb.kv.Get(cb.buildKey(key), cb.queryOptions(ctx))
	if err != nil {
		return nil, data.Transport("rename", key, err)
	}
	if pair != nil {
		return api.KVPairs{pair}, nil
	}

	pairs, _, err := cb.kv.List(cb.buildPrefix(key), cb.queryOptions(ctx))
	if err != nil {
		return nil, data.Transport("rename", key, err)
	}

	return pairs, nil
}

func (cb *ConsulBackend) txn(ctx context.Context, key string, ops api.TxnOps) error {
	ok, resp, _, err := cb.client.Txn().Txn(ops, cb.queryOptions(ctx))
	if err != nil {
		return data.Transport("rename", key, err)
	}
	if ok {
		return nil
	}

	var errs data.Errors
	if resp != nil {
		for _, txnErr := range resp.Errors {
			errs.Add(fmt.Errorf("operation %d: %s", txnErr.OpIndex, txnErr.What))
		}
	}
	if errs.Len() == 0 {
		errs.Add(errors.New("transaction rolled back"))
	}

	return data.Transport("rename", key, errs.Errors())
}

// EnsureDirectory is a no-op for virtual directories; it fails when a file
// occupies the key.
func (cb *ConsulBackend) EnsureDirectory(ctx context.Context, path string) error {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	key, err := cb.wd.Resolve(path)
	if err != nil || key == "" {
		return err
	}

	pair, _, err := cb.kv.Get(cb.buildKey(key), cb.queryOptions(ctx))
	if err != nil {
		return data.Transport("mkdir", key, err)
	}
	if pair != nil {
		return data.NewPathError("mkdir", key, data.ErrNotDirectory)
	}

	return nil
}
