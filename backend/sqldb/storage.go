package sqldb

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type objectRow struct {
	key        string
	size       int64
	createTime int64
	modifyTime int64
	accessTime int64
}

func toFileStat(row objectRow) *data.FileStat {
	stat := data.NewFileStat(row.key, row.size, time.Unix(0, row.modifyTime))
	stat.CreateTime = time.Unix(0, row.createTime)
	stat.AccessTime = time.Unix(0, row.accessTime)

	return stat
}

func (sb *SQLBackend) StatObject(ctx context.Context, path string) (*data.FileStat, error) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	key, err := sb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}

	if key == "" {
		return data.NewDirStat("", time.Time{}), nil
	}

	row, err := sb.lookup(ctx, sb.db, "stat", key)
	if err == nil {
		return toFileStat(*row), nil
	}
	if !errors.Is(err, data.ErrNotExist) {
		return nil, err
	}

	isDir, err := sb.hasChildren(ctx, sb.db, key)
	if err != nil {
		return nil, err
	}
	if isDir {
		return data.NewDirStat(key, time.Time{}), nil
	}

	return nil, data.NotExist("stat", key)
}

func (sb *SQLBackend) lookup(ctx context.Context, q querier, op, key string) (*objectRow, error) {
	row := objectRow{key: key}

	err := q.QueryRowContext(ctx, sb.rebind(
		"SELECT size, create_time, modify_time, access_time FROM unifs_objects WHERE key = ?"), key).
		Scan(&row.size, &row.createTime, &row.modifyTime, &row.accessTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, data.NotExist(op, key)
		}
		return nil, data.Transport(op, key, err)
	}

	return &row, nil
}

func (sb *SQLBackend) hasChildren(ctx context.Context, q querier, key string) (bool, error) {
	lower, upper := subtree(key)

	var found string
	err := q.QueryRowContext(ctx, sb.rebind(
		"SELECT key FROM unifs_objects WHERE key > ? AND key < ? LIMIT 1"), lower, upper).
		Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, data.Transport("stat", key, err)
	}

	return true, nil
}

// ListObjects walks the subtree in key order, PageSize rows per query, and
// groups the rows one level below the directory.
func (sb *SQLBackend) ListObjects(ctx context.Context, path string) ([]*data.FileStat, error) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	key, err := sb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}

	lower, upper := subtree(key)
	listing := backend.NewListing()

	cursor := lower
	pages := 0
	for {
		rows, err := sb.page(ctx, cursor, upper)
		if err != nil {
			return nil, data.Transport("list", key, err)
		}
		pages++

		for _, row := range rows {
			rest := strings.TrimPrefix(row.key, lower)
			if name, _, nested := strings.Cut(rest, data.Separator); nested {
				listing.Add(data.NewDirStat(data.JoinKey(key, name), time.Time{}))
				continue
			}
			listing.Add(toFileStat(row))
		}

		if len(rows) < sb.cfg.PageSize {
			break
		}
		cursor = rows[len(rows)-1].key
	}

	sb.logger.Debug("List: '%s' returned %d entries in %d pages", key, listing.Len(), pages)
	return listing.Entries(), nil
}

func (sb *SQLBackend) page(ctx context.Context, cursor, upper string) ([]objectRow, error) {
	query := "SELECT key, size, create_time, modify_time, access_time FROM unifs_objects WHERE key > ?"
	args := []any{cursor}
	if upper != "" {
		query += " AND key < ?"
		args = append(args, upper)
	}
	query += " ORDER BY key LIMIT ?"
	args = append(args, sb.cfg.PageSize)

	rows, err := sb.db.QueryContext(ctx, sb.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]objectRow, 0, sb.cfg.PageSize)
	for rows.Next() {
		var row objectRow
		if err := rows.Scan(&row.key, &row.size, &row.createTime, &row.modifyTime, &row.accessTime); err != nil {
			return nil, err
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

func (sb *SQLBackend) ReadObject(ctx context.Context, path string, opts backend.ReadOptions) (io.ReadCloser, error) {
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

	content, err := sb.content(ctx, sb.db, "read", key)
	if err != nil {
		return nil, err
	}
	if opts.Offset >= int64(len(content)) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	return io.NopCloser(bytes.NewReader(content[opts.Offset:])), nil
}

// content returns the stored bytes of a file key, failing with
// ErrIsDirectory for directories.
func (sb *SQLBackend) content(ctx context.Context, q querier, op, key string) ([]byte, error) {
	var content []byte
	err := q.QueryRowContext(ctx, sb.rebind("SELECT content FROM unifs_objects WHERE key = ?"), key).Scan(&content)
	if err == nil {
		return content, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, data.Transport(op, key, err)
	}

	isDir, err := sb.hasChildren(ctx, q, key)
	if err != nil {
		return nil, err
	}
	if isDir {
		return nil, data.NewPathError(op, key, data.ErrIsDirectory)
	}

	return nil, data.NotExist(op, key)
}

// WriteObject buffers the upload and stores it in one transaction on Close.
func (sb *SQLBackend) WriteObject(ctx context.Context, path string, opts backend.WriteOptions) (*backend.UploadSession, error) {
	key, err := sb.wd.Resolve(path)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, data.NewPathError("write", key, data.ErrIsDirectory)
	}
	if opts.Offset < 0 {
		return nil, data.NewPathError("write", key, data.ErrInvalid)
	}

	return backend.StartUpload(ctx, key, sb.logger, func(ctx context.Context, r io.Reader) error {
		content, err := io.ReadAll(r)
		if err != nil {
			return err
		}

		sb.mu.Lock()
		defer sb.mu.Unlock()

		return sb.inTx(ctx, "write", key, func(tx *sql.Tx) error {
			return sb.store(ctx, tx, key, content, opts)
		})
	}), nil
}

// checkPlacement fails when a file occupies an ancestor of key or when key
// already holds children.
func (sb *SQLBackend) checkPlacement(ctx context.Context, q querier, op, key string) error {
	for parent := data.ParentKey(key); parent != ""; parent = data.ParentKey(parent) {
		if _, err := sb.lookup(ctx, q, op, parent); err == nil {
			return data.NewPathError(op, key, data.ErrNotDirectory)
		} else if !errors.Is(err, data.ErrNotExist) {
			return err
		}
	}

	isDir, err := sb.hasChildren(ctx, q, key)
	if err != nil {
		return err
	}
	if isDir {
		return data.NewPathError(op, key, data.ErrIsDirectory)
	}

	return nil
}

func (sb *SQLBackend) store(ctx context.Context, tx *sql.Tx, key string, content []byte, opts backend.WriteOptions) error {
	if err := sb.checkPlacement(ctx, tx, "write", key); err != nil {
		return err
	}

	if !opts.Truncating() {
		existing, err := sb.content(ctx, tx, "write", key)
		if err != nil && !errors.Is(err, data.ErrNotExist) {
			return err
		}
		content = backend.ApplyWrite(existing, content, opts)
	}

	now := time.Now().UnixNano()
	_, err := tx.ExecContext(ctx, sb.rebind(`
		INSERT INTO unifs_objects (key, content, size, create_time, modify_time, access_time)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			content = excluded.content,
			size = excluded.size,
			modify_time = excluded.modify_time,
			access_time = excluded.access_time`),
		key, content, int64(len(content)), now, now, now)
	if err != nil {
		return data.Transport("write", key, err)
	}

	sb.logger.Debug("Write: '%s' stored %d bytes", key, len(content))
	return nil
}

func (sb *SQLBackend) inTx(ctx context.Context, op, key string, fn func(tx *sql.Tx) error) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return data.Transport(op, key, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return data.Transport(op, key, err)
	}
	return nil
}

// DeleteObject fails with not found for missing keys.
func (sb *SQLBackend) DeleteObject(ctx context.Context, path string) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	key, err := sb.wd.Resolve(path)
	if err != nil {
		return err
	}
	if key == "" {
		return data.NewPathError("delete", key, data.ErrIsDirectory)
	}

	result, err := sb.db.ExecContext(ctx, sb.rebind("DELETE FROM unifs_objects WHERE key = ?"), key)
	if err != nil {
		return data.Transport("delete", key, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		return nil
	}

	isDir, err := sb.hasChildren(ctx, sb.db, key)
	if err != nil {
		return err
	}
	if isDir {
		return data.NewPathError("delete", key, data.ErrIsDirectory)
	}

	return data.NotExist("delete", key)
}

// DeleteTree removes the key and its subtree with a single statement.
func (sb *SQLBackend) DeleteTree(ctx context.Context, path string) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	key, err := sb.wd.Resolve(path)
	if err != nil {
		return err
	}

	var result sql.Result
	if key == "" {
		result, err = sb.db.ExecContext(ctx, "DELETE FROM unifs_objects")
	} else {
		lower, upper := subtree(key)
		result, err = sb.db.ExecContext(ctx, sb.rebind(
			"DELETE FROM unifs_objects WHERE key = ? OR (key > ? AND key < ?)"), key, lower, upper)
	}
	if err != nil {
		return data.Transport("delete", key, err)
	}

	affected, _ := result.RowsAffected()
	sb.logger.Debug("DeleteTree: '%s' removed %d rows", key, affected)
	return nil
}

// RenameObject rewrites keys inside one transaction. Existing entries at the
// destination are replaced.
func (sb *SQLBackend) RenameObject(ctx context.Context, from, to string) error {
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
	if fromKey == "" || toKey == "" || data.IsWithin(toKey, fromKey) || data.IsWithin(fromKey, toKey) {
		return &data.RenameError{From: fromKey, To: toKey, Err: data.ErrInvalidPath}
	}

	err = sb.inTx(ctx, "rename", fromKey, func(tx *sql.Tx) error {
		if _, err := sb.lookup(ctx, tx, "rename", fromKey); err == nil {
			return sb.renameFile(ctx, tx, fromKey, toKey)
		} else if !errors.Is(err, data.ErrNotExist) {
			return err
		}

		return sb.renameTree(ctx, tx, fromKey, toKey)
	})
	if err != nil {
		return &data.RenameError{From: fromKey, To: toKey, Err: err}
	}

	sb.logger.Debug("Rename: '%s' moved to '%s'", fromKey, toKey)
	return nil
}

func (sb *SQLBackend) renameFile(ctx context.Context, tx *sql.Tx, fromKey, toKey string) error {
	if _, err := tx.ExecContext(ctx, sb.rebind("DELETE FROM unifs_objects WHERE key = ?"), toKey); err != nil {
		return data.Transport("rename", toKey, err)
	}

	_, err := tx.ExecContext(ctx, sb.rebind(
		"UPDATE unifs_objects SET key = ?, modify_time = ? WHERE key = ?"), toKey, time.Now().UnixNano(), fromKey)
	if err != nil {
		return data.Transport("rename", fromKey, err)
	}

	return nil
}

func (sb *SQLBackend) renameTree(ctx context.Context, tx *sql.Tx, fromKey, toKey string) error {
	oldLower, oldUpper := subtree(fromKey)
	newLower, newUpper := subtree(toKey)

	if _, err := tx.ExecContext(ctx, sb.rebind(
		"DELETE FROM unifs_objects WHERE key = ? OR (key > ? AND key < ?)"), toKey, newLower, newUpper); err != nil {
		return data.Transport("rename", toKey, err)
	}

	// substr counts characters from 1 in both dialects
	result, err := tx.ExecContext(ctx, sb.rebind(
		"UPDATE unifs_objects SET key = ? || substr(key, ?) WHERE key > ? AND key < ?"),
		newLower, utf8.RuneCountInString(oldLower)+1, oldLower, oldUpper)
	if err != nil {
		return data.Transport("rename", fromKey, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return data.Transport("rename", fromKey, err)
	}
	if affected == 0 {
		return data.NotExist("rename", fromKey)
	}

	return nil
}

// EnsureDirectory is a no-op for virtual directories; it fails when a file
// occupies the key.
func (sb *SQLBackend) EnsureDirectory(ctx context.Context, path string) error {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	key, err := sb.wd.Resolve(path)
	if err != nil || key == "" {
		return err
	}

	if _, err := sb.lookup(ctx, sb.db, "mkdir", key); err == nil {
		return data.NewPathError("mkdir", key, data.ErrNotDirectory)
	} else if !errors.Is(err, data.ErrNotExist) {
		return err
	}

	return nil
}
