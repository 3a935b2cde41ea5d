package backend

import (
	"context"
	"sync"
	"time"

	"github.com/mwantia/unifs/data"
	"github.com/tidwall/btree"
)

const DefaultListingTTL = 60 * time.Second

// NamespacedKey combines namespace and key.
// Returns "namespace:key" format, or just "key" if namespace is empty.
func NamespacedKey(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

// ListingCache keeps directory listings for backends without a cheap
// single-object stat. Entries are immutable snapshots; writes through the
// backend do not invalidate them, so results may be stale until the TTL
// elapses. Concurrent fills of one key resolve last-write-wins.
type ListingCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*listingEntry
}

type listingEntry struct {
	snapshot *btree.Map[string, data.FileStat]
	expires  time.Time
}

func NewListingCache(ttl time.Duration) *ListingCache {
	if ttl <= 0 {
		ttl = DefaultListingTTL
	}

	return &ListingCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*listingEntry),
	}
}

// SetClock replaces the time source.
func (lc *ListingCache) SetClock(now func() time.Time) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.now = now
}

func (lc *ListingCache) TTL() time.Duration {
	return lc.ttl
}

// Len returns the number of entries, including expired ones not yet swept.
func (lc *ListingCache) Len() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	return len(lc.entries)
}

// Put stores entries as the listing of dir inside namespace.
func (lc *ListingCache) Put(namespace, dir string, entries []*data.FileStat) {
	snapshot := btree.NewMap[string, data.FileStat](0)
	for _, entry := range entries {
		snapshot.Set(entry.Name, *entry)
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	now := lc.now()
	for key, entry := range lc.entries {
		if !now.Before(entry.expires) {
			delete(lc.entries, key)
		}
	}

	lc.entries[NamespacedKey(namespace, dir)] = &listingEntry{
		snapshot: snapshot,
		expires:  now.Add(lc.ttl),
	}
}

// Get returns a copy of the cached listing of dir, or false when missing
// or expired.
func (lc *ListingCache) Get(namespace, dir string) ([]*data.FileStat, bool) {
	entry, ok := lc.lookup(namespace, dir)
	if !ok {
		return nil, false
	}

	stats := make([]*data.FileStat, 0, entry.snapshot.Len())
	entry.snapshot.Scan(func(_ string, stat data.FileStat) bool {
		stats = append(stats, &stat)
		return true
	})

	return stats, true
}

// Find returns the cached entry called name inside dir. cached is false
// when no valid listing of dir is present.
func (lc *ListingCache) Find(namespace, dir, name string) (stat *data.FileStat, cached bool) {
	entry, ok := lc.lookup(namespace, dir)
	if !ok {
		return nil, false
	}

	if found, exists := entry.snapshot.Get(name); exists {
		return &found, true
	}

	return nil, true
}

// Load returns the cached listing of dir or fills it through load.
func (lc *ListingCache) Load(ctx context.Context, namespace, dir string, load func(ctx context.Context) ([]*data.FileStat, error)) ([]*data.FileStat, error) {
	if stats, ok := lc.Get(namespace, dir); ok {
		return stats, nil
	}

	stats, err := load(ctx)
	if err != nil {
		return nil, err
	}

	lc.Put(namespace, dir, stats)
	return stats, nil
}

func (lc *ListingCache) lookup(namespace, dir string) (*listingEntry, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	key := NamespacedKey(namespace, dir)
	entry, ok := lc.entries[key]
	if !ok {
		return nil, false
	}

	if !lc.now().Before(entry.expires) {
		delete(lc.entries, key)
		return nil, false
	}

	return entry, true
}
