package backend

import (
	"github.com/mwantia/unifs/data"
	"github.com/tidwall/btree"
)

// Listing accumulates the pages of one directory listing. Entries are
// de-duplicated by name within their kind; directories come first.
type Listing struct {
	dirs  *btree.Map[string, *data.FileStat]
	files *btree.Map[string, *data.FileStat]
}

func NewListing() *Listing {
	return &Listing{
		dirs:  btree.NewMap[string, *data.FileStat](0),
		files: btree.NewMap[string, *data.FileStat](0),
	}
}

// Add inserts stat and reports whether it was new.
func (l *Listing) Add(stat *data.FileStat) bool {
	if stat == nil || stat.Name == "" {
		return false
	}

	target := l.files
	if stat.IsDir() {
		target = l.dirs
	}

	if _, exists := target.Get(stat.Name); exists {
		return false
	}

	target.Set(stat.Name, stat)
	return true
}

func (l *Listing) Len() int {
	return l.dirs.Len() + l.files.Len()
}

// Entries returns directories followed by files, each sorted by name.
func (l *Listing) Entries() []*data.FileStat {
	entries := make([]*data.FileStat, 0, l.Len())

	l.dirs.Scan(func(_ string, stat *data.FileStat) bool {
		entries = append(entries, stat)
		return true
	})
	l.files.Scan(func(_ string, stat *data.FileStat) bool {
		entries = append(entries, stat)
		return true
	})

	return entries
}
