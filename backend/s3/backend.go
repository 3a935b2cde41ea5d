package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
	"github.com/mwantia/unifs/log"
)

const (
	DefaultEndpoint    = "s3.amazonaws.com"
	DefaultPartSize    = 16 << 20
	DefaultPageSize    = 1000
	DefaultConcurrency = 10
)

// Config configures an S3Backend.
type Config struct {
	// Endpoint is the S3 host, e.g. "s3.amazonaws.com" or "localhost:9000"
	Endpoint string
	Bucket   string

	AccessKey string
	SecretKey string

	// Region skips the bucket location lookup when set
	Region string
	UseSSL bool

	// PartSize bounds the memory of streaming uploads of unknown size
	PartSize uint64
	// PageSize is the maximum number of keys requested per listing page
	PageSize int
	// Concurrency limits parallel copies during prefix renames
	Concurrency int

	Logger *log.Logger
}

func (c *Config) validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.AccessKey == "" {
		return fmt.Errorf("access key is required")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret key is required")
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.PartSize == 0 {
		c.PartSize = DefaultPartSize
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Logger == nil {
		c.Logger = log.Discard()
	}
}

// S3Backend maps the flat key namespace of a bucket onto directories using
// "/" as delimiter. Directories exist only as key prefixes.
type S3Backend struct {
	mu sync.RWMutex

	client *minio.Client
	core   *minio.Core
	bucket string
	cfg    Config

	wd     *backend.Workdir
	logger *log.Logger
}

func NewS3Backend(cfg Config) (*S3Backend, error) {
	if err := cfg.validate(); err != nil {
		return nil, data.NewPathError("open", cfg.Bucket, errors.Join(data.ErrInvalid, err))
	}
	cfg.setDefaults()

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, data.NewPathError("open", cfg.Bucket, errors.Join(data.ErrOpenFailed, err))
	}

	return &S3Backend{
		client: client,
		core:   &minio.Core{Client: client},
		bucket: cfg.Bucket,
		cfg:    cfg,
		wd:     backend.NewWorkdir(false),
		logger: cfg.Logger.Named("s3"),
	}, nil
}

// Returns the identifier name defined for this backend
func (*S3Backend) Name() string {
	return "s3"
}

// Open verifies the bucket exists.
func (sb *S3Backend) Open(ctx context.Context) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	exists, err := sb.client.BucketExists(ctx, sb.bucket)
	if err != nil {
		return data.Transport("open", sb.bucket, err)
	}

	if !exists {
		return data.NewPathError("open", sb.bucket, data.ErrOpenFailed)
	}

	sb.logger.Debug("Opened bucket '%s' at %s", sb.bucket, sb.cfg.Endpoint)
	return nil
}

// Close is part of the lifecycle behaviour; the client holds no session.
func (sb *S3Backend) Close(ctx context.Context) error {
	return nil
}

// GetCapabilities returns a list of capabilities supported by this backend.
func (sb *S3Backend) GetCapabilities() *backend.BackendCapabilities {
	return &backend.BackendCapabilities{
		Capabilities: []backend.BackendCapability{
			backend.CapabilityObjectStorage,
			backend.CapabilityStreaming,
			backend.CapabilityRangeRead,
			backend.CapabilityPrefixDelete,
		},
		// Single PUT and server-side copy limit
		MaxObjectSize: 5 << 40,
	}
}

func (sb *S3Backend) CurrentDirectory() string {
	return sb.wd.Current()
}

// ChangeDirectory does not validate existence; prefixes appear and vanish
// with their objects.
func (sb *S3Backend) ChangeDirectory(ctx context.Context, path string) error {
	key, err := sb.wd.Resolve(path)
	if err != nil {
		return err
	}

	sb.wd.Set(key)
	return nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// toFileStat converts minio.ObjectInfo to a FileStat.
func toFileStat(info minio.ObjectInfo) *data.FileStat {
	stat := data.NewFileStat(info.Key, info.Size, info.LastModified)
	stat.ContentType = info.ContentType
	stat.ETag = strings.Trim(info.ETag, `"`)

	return stat
}

// toDirStat converts a common prefix to a directory FileStat.
func toDirStat(prefix string) *data.FileStat {
	return data.NewDirStat(strings.TrimSuffix(prefix, data.Separator), time.Time{})
}
