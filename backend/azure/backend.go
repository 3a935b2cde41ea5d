package azure

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
	"github.com/mwantia/unifs/log"
)

const (
	DefaultBlockSize        = 8 << 20
	DefaultSignedURLTTL     = 4 * time.Hour
	DefaultCopyPollInterval = 500 * time.Millisecond
	DefaultPageSize         = 5000
)

var _ backend.URLSigner = (*AzureBackend)(nil)

// Config configures an AzureBackend.
type Config struct {
	Account    string
	AccountKey string
	Container  string

	// Endpoint overrides "https://<account>.blob.core.windows.net",
	// e.g. for Azurite
	Endpoint string

	BlockSize        int64
	PageSize         int32
	SignedURLTTL     time.Duration
	CopyPollInterval time.Duration

	Logger *log.Logger
}

func (c *Config) validate() error {
	if c.Account == "" {
		return fmt.Errorf("account is required")
	}
	if c.AccountKey == "" {
		return fmt.Errorf("account key is required")
	}
	if c.Container == "" {
		return fmt.Errorf("container is required")
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", c.Account)
	}
	c.Endpoint = strings.TrimSuffix(c.Endpoint, "/")

	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = DefaultSignedURLTTL
	}
	if c.CopyPollInterval <= 0 {
		c.CopyPollInterval = DefaultCopyPollInterval
	}
	if c.Logger == nil {
		c.Logger = log.Discard()
	}
}

// AzureBackend serves a blob container with "/" as virtual directory
// delimiter. It is the only backend able to issue signed download URLs.
type AzureBackend struct {
	mu sync.RWMutex

	client *container.Client
	cred   *container.SharedKeyCredential
	cfg    Config

	wd     *backend.Workdir
	logger *log.Logger
	now    func() time.Time
}

func NewAzureBackend(cfg Config) (*AzureBackend, error) {
	if err := cfg.validate(); err != nil {
		return nil, data.NewPathError("open", cfg.Container, errors.Join(data.ErrInvalid, err))
	}
	cfg.setDefaults()

	cred, err := container.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
	if err != nil {
		return nil, data.NewPathError("open", cfg.Container, errors.Join(data.ErrInvalid, err))
	}

	client, err := container.NewClientWithSharedKeyCredential(cfg.Endpoint+"/"+cfg.Container, cred, nil)
	if err != nil {
		return nil, data.NewPathError("open", cfg.Container, errors.Join(data.ErrOpenFailed, err))
	}

	return &AzureBackend{
		client: client,
		cred:   cred,
		cfg:    cfg,
		wd:     backend.NewWorkdir(false),
		logger: cfg.Logger.Named("azure"),
		now:    time.Now,
	}, nil
}

// Returns the identifier name defined for this backend
func (*AzureBackend) Name() string {
	return "azure"
}

// Open verifies the container exists.
func (ab *AzureBackend) Open(ctx context.Context) error {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	if _, err := ab.client.GetProperties(ctx, nil); err != nil {
		if bloberror.HasCode(err, bloberror.ContainerNotFound) {
			return data.NewPathError("open", ab.cfg.Container, data.ErrOpenFailed)
		}
		return data.Transport("open", ab.cfg.Container, err)
	}

	ab.logger.Debug("Opened container '%s' at %s", ab.cfg.Container, ab.cfg.Endpoint)
	return nil
}

// Close is part of the lifecycle behaviour; the client holds no session.
func (ab *AzureBackend) Close(ctx context.Context) error {
	return nil
}

// GetCapabilities returns a list of capabilities supported by this backend.
func (ab *AzureBackend) GetCapabilities() *backend.BackendCapabilities {
	return &backend.BackendCapabilities{
		Capabilities: []backend.BackendCapability{
			backend.CapabilityObjectStorage,
			backend.CapabilityStreaming,
			backend.CapabilityRangeRead,
			backend.CapabilitySignedURL,
		},
	}
}

func (ab *AzureBackend) CurrentDirectory() string {
	return ab.wd.Current()
}

func (ab *AzureBackend) ChangeDirectory(ctx context.Context, path string) error {
	key, err := ab.wd.Resolve(path)
	if err != nil {
		return err
	}

	ab.wd.Set(key)
	return nil
}

// blobURL returns the unsigned URL of key with every segment escaped.
func (ab *AzureBackend) blobURL(key string) string {
	segments := strings.Split(key, data.Separator)
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}

	return ab.cfg.Endpoint + "/" + ab.cfg.Container + "/" + strings.Join(segments, data.Separator)
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
