package unifs

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/log"
)

// sharedListingCache is used by every backend opened without an explicit
// cache, so sessions on the same zone share listings.
var sharedListingCache = backend.NewListingCache(backend.DefaultListingTTL)

// Options carries the settings Open applies to the selected backend.
type Options struct {
	Logger       *log.Logger
	ListingCache *backend.ListingCache
	HTTPClient   *http.Client

	// PageSize overrides the listing page size of S3, Azure and SQL.
	PageSize int
	// PartSize overrides upload part and block sizes of S3 and Azure.
	PartSize int64
	// Concurrency limits parallel copies of S3 prefix renames.
	Concurrency int
	// SignedURLTTL overrides the validity of Azure signed URLs.
	SignedURLTTL time.Duration
	// ReadOnly rejects every mutating operation.
	ReadOnly bool
}

type Option func(*Options) error

func newDefaultOptions() *Options {
	return &Options{
		Logger:       log.Discard(),
		ListingCache: sharedListingCache,
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(opts *Options) error {
		if logger != nil {
			opts.Logger = logger
		}
		return nil
	}
}

func WithListingCache(cache *backend.ListingCache) Option {
	return func(opts *Options) error {
		opts.ListingCache = cache
		return nil
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(opts *Options) error {
		opts.HTTPClient = client
		return nil
	}
}

func WithPageSize(size int) Option {
	return func(opts *Options) error {
		if size < 0 {
			return fmt.Errorf("negative value for WithPageSize: %v", size)
		}
		opts.PageSize = size
		return nil
	}
}

func WithPartSize(size int64) Option {
	return func(opts *Options) error {
		if size < 0 {
			return fmt.Errorf("negative value for WithPartSize: %v", size)
		}
		opts.PartSize = size
		return nil
	}
}

func WithConcurrency(limit int) Option {
	return func(opts *Options) error {
		if limit < 0 {
			return fmt.Errorf("negative value for WithConcurrency: %v", limit)
		}
		opts.Concurrency = limit
		return nil
	}
}

func WithSignedURLTTL(ttl time.Duration) Option {
	return func(opts *Options) error {
		if ttl < 0 {
			return fmt.Errorf("negative value for WithSignedURLTTL: %v", ttl)
		}
		opts.SignedURLTTL = ttl
		return nil
	}
}

// WithReadOnly wraps the opened backend so that writes, deletes, renames and
// directory creation fail with ErrPermission.
func WithReadOnly() Option {
	return func(opts *Options) error {
		opts.ReadOnly = true
		return nil
	}
}
