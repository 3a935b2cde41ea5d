package backend

import (
	"sync"

	"github.com/mwantia/unifs/data"
)

// Workdir holds the working directory of one backend instance.
// When strict is set, paths climbing above the root are rejected instead
// of clamped.
type Workdir struct {
	mu     sync.RWMutex
	cwd    string
	strict bool
}

func NewWorkdir(strict bool) *Workdir {
	return &Workdir{
		cwd:    data.Separator,
		strict: strict,
	}
}

// Current returns the absolute working directory.
func (w *Workdir) Current() string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.cwd
}

// Resolve returns the root-relative key for path.
func (w *Workdir) Resolve(path string) (string, error) {
	w.mu.RLock()
	cwd := w.cwd
	w.mu.RUnlock()

	key, escaped := data.ResolveKey(cwd, path)
	if escaped && w.strict {
		return "", data.NewPathError("resolve", path, data.ErrInvalidPath)
	}

	return key, nil
}

// Set stores key as the new working directory.
func (w *Workdir) Set(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cwd = data.ToAbsolutePath(data.ToKey(key))
}
