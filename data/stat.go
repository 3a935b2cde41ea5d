package data

import (
	"time"

	"github.com/goccy/go-json"
)

// FileStat is the uniform metadata record every backend produces.
// Directories synthesized from a key prefix carry no size and no times
// unless the backend reports them.
type FileStat struct {
	// Root-relative key without leading separator
	Key string `json:"key"`

	// Last path segment of Key
	Name string `json:"name"`

	Mode FileMode `json:"mode"`

	// Size in bytes (0 for directories)
	Size int64 `json:"size"`

	CreateTime time.Time `json:"create_time"`
	ModifyTime time.Time `json:"modify_time"`
	AccessTime time.Time `json:"access_time"`

	ContentType string `json:"content_type,omitempty"`
	ETag        string `json:"etag,omitempty"`
}

// NewFileStat builds a read-only file entry. Creation and access time
// default to the modification time.
func NewFileStat(key string, size int64, modTime time.Time) *FileStat {
	return &FileStat{
		Key:        key,
		Name:       BaseName(key),
		Mode:       ModeFileReadOnly,
		Size:       size,
		CreateTime: modTime,
		ModifyTime: modTime,
		AccessTime: modTime,
	}
}

// NewDirStat builds a read-only directory entry.
func NewDirStat(key string, modTime time.Time) *FileStat {
	return &FileStat{
		Key:        key,
		Name:       BaseName(key),
		Mode:       ModeDirReadOnly,
		CreateTime: modTime,
		ModifyTime: modTime,
		AccessTime: modTime,
	}
}

func (fs *FileStat) IsDir() bool {
	return fs.Mode.IsDir()
}

func (fs *FileStat) Marshal() ([]byte, error) {
	return json.Marshal(fs)
}
