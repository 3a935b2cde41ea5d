package backend

import (
	"context"

	"github.com/mwantia/unifs/data"
	"golang.org/x/sync/errgroup"
)

const DefaultTreeConcurrency = 8

// TreeOps are the key-based primitives RemoveTree walks with.
type TreeOps struct {
	// List returns the direct children of a directory key.
	List func(ctx context.Context, key string) ([]*data.FileStat, error)
	// RemoveFile deletes a single file key.
	RemoveFile func(ctx context.Context, key string) error
	// RemoveDir deletes an emptied directory key. Optional for stores
	// without real directories.
	RemoveDir func(ctx context.Context, key string) error
	// Concurrency limits parallel file deletes inside one directory.
	Concurrency int
}

// RemoveTree deletes key and all descendants using an explicit work-list.
// Files of one directory are removed in parallel; directories are removed
// children first, after all their files returned.
func RemoveTree(ctx context.Context, key string, ops TreeOps) error {
	limit := ops.Concurrency
	if limit <= 0 {
		limit = DefaultTreeConcurrency
	}

	pending := []string{key}
	visited := make([]string, 0)

	for len(pending) > 0 {
		dir := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		entries, err := ops.List(ctx, dir)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)

		for _, entry := range entries {
			if entry.IsDir() {
				pending = append(pending, entry.Key)
				continue
			}

			g.Go(func() error {
				return ops.RemoveFile(gctx, entry.Key)
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}

		visited = append(visited, dir)
	}

	if ops.RemoveDir == nil {
		return nil
	}

	for i := len(visited) - 1; i >= 0; i-- {
		if err := ops.RemoveDir(ctx, visited[i]); err != nil {
			return err
		}
	}

	return nil
}
