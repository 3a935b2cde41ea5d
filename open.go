package unifs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/backend/azure"
	"github.com/mwantia/unifs/backend/bunny"
	"github.com/mwantia/unifs/backend/consul"
	"github.com/mwantia/unifs/backend/local"
	"github.com/mwantia/unifs/backend/s3"
	"github.com/mwantia/unifs/backend/sqldb"
	"github.com/mwantia/unifs/data"
)

// Open parses descriptor, instantiates the matching backend and opens it.
func Open(ctx context.Context, descriptor string, opts ...Option) (backend.StorageBackend, error) {
	loc, err := ParseLocation(descriptor)
	if err != nil {
		return nil, data.NewPathError("open", "", errors.Join(data.ErrInvalid, err))
	}

	return OpenLocation(ctx, loc, opts...)
}

// openBackend opens b and releases it again when opening fails.
func openBackend(ctx context.Context, b backend.StorageBackend) error {
	if err := b.Open(ctx); err != nil {
		_ = b.Close(ctx)
		return err
	}

	return nil
}

// OpenLocation instantiates and opens the backend selected by loc.
func OpenLocation(ctx context.Context, loc *Location, opts ...Option) (backend.StorageBackend, error) {
	options := newDefaultOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, data.NewPathError("open", "", errors.Join(data.ErrInvalid, err))
		}
	}

	b, err := NewBackend(loc, options)
	if err != nil {
		return nil, err
	}

	if err := openBackend(ctx, b); err != nil {
		return nil, err
	}

	options.Logger.Info("Opened %s backend for %s", b.Name(), loc)
	if options.ReadOnly || loc.Query.Get("readonly") == "true" {
		return backend.ReadOnly(b), nil
	}
	return b, nil
}

// NewBackend instantiates the backend selected by loc without opening it.
func NewBackend(loc *Location, options *Options) (backend.StorageBackend, error) {
	if options == nil {
		options = newDefaultOptions()
	}

	switch loc.Kind {
	case KindLocal:
		return opened(local.NewLocalBackend(local.Config{
			Root:   loc.Path,
			Logger: options.Logger,
		}))

	case KindS3:
		useSSL, err := boolParam(loc, "ssl", true)
		if err != nil {
			return nil, err
		}
		return opened(s3.NewS3Backend(s3.Config{
			Endpoint:    loc.Host,
			Bucket:      loc.Bucket(),
			AccessKey:   loc.Username,
			SecretKey:   loc.Secret,
			Region:      loc.Query.Get("region"),
			UseSSL:      useSSL,
			PartSize:    uint64(options.PartSize),
			PageSize:    options.PageSize,
			Concurrency: options.Concurrency,
			Logger:      options.Logger,
		}))

	case KindAzure:
		return opened(azure.NewAzureBackend(azure.Config{
			Account:      loc.Username,
			AccountKey:   loc.Secret,
			Container:    loc.Host,
			Endpoint:     loc.Query.Get("endpoint"),
			BlockSize:    options.PartSize,
			PageSize:     int32(options.PageSize),
			SignedURLTTL: options.SignedURLTTL,
			Logger:       options.Logger,
		}))

	case KindBunny:
		return opened(bunny.NewBunnyBackend(bunny.Config{
			AccessKey:  loc.Username,
			Zone:       loc.Host,
			Region:     loc.Query.Get("region"),
			Endpoint:   loc.Query.Get("endpoint"),
			HTTPClient: options.HTTPClient,
			Cache:      options.ListingCache,
			Logger:     options.Logger,
		}))

	case KindConsul:
		return opened(consul.NewConsulBackend(consul.Config{
			Address:    loc.Host,
			Scheme:     loc.Query.Get("scheme"),
			Token:      loc.Username,
			Datacenter: loc.Query.Get("dc"),
			Namespace:  loc.Query.Get("ns"),
			Prefix:     strings.Trim(loc.Path, "/"),
			Logger:     options.Logger,
		}))

	case KindSQLite, KindPostgres:
		dialect := sqldb.DialectSQLite
		if loc.Kind == KindPostgres {
			dialect = sqldb.DialectPostgres
		}
		return opened(sqldb.NewSQLBackend(sqldb.Config{
			Dialect:  dialect,
			DSN:      loc.DSN(),
			PageSize: options.PageSize,
			Logger:   options.Logger,
		}))

	default:
		return nil, data.NewPathError("open", "", fmt.Errorf("%w: unknown backend kind %s", data.ErrInvalid, loc.Kind))
	}
}

// opened drops the concrete type so that failures return a nil interface.
func opened[T backend.StorageBackend](b T, err error) (backend.StorageBackend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}

func boolParam(loc *Location, name string, fallback bool) (bool, error) {
	raw := loc.Query.Get(name)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, data.NewPathError("open", "", fmt.Errorf("%w: invalid %s parameter '%s'", data.ErrInvalid, name, raw))
	}
	return value, nil
}
