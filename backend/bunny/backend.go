package bunny

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
	"github.com/mwantia/unifs/log"
)

const (
	DefaultEndpoint = "https://storage.bunnycdn.com"
	DefaultRegion   = "de"
)

// Config configures a BunnyBackend.
type Config struct {
	AccessKey string
	Zone      string

	// Region selects "https://<region>.storage.bunnycdn.com"; "de" is the
	// main endpoint. Ignored when Endpoint is set.
	Region   string
	Endpoint string

	HTTPClient *http.Client
	// Cache holds directory listings used by StatObject. Backends opened
	// through the selector share one cache.
	Cache *backend.ListingCache

	Logger *log.Logger
}

func (c *Config) validate() error {
	if c.AccessKey == "" {
		return fmt.Errorf("access key is required")
	}
	if c.Zone == "" {
		return fmt.Errorf("storage zone is required")
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.Endpoint == "" {
		switch c.Region {
		case "", DefaultRegion:
			c.Endpoint = DefaultEndpoint
		default:
			c.Endpoint = fmt.Sprintf("https://%s.storage.bunnycdn.com", c.Region)
		}
	}
	c.Endpoint = strings.TrimSuffix(c.Endpoint, "/")

	if c.HTTPClient == nil {
		c.HTTPClient = cleanhttp.DefaultPooledClient()
	}
	if c.Cache == nil {
		c.Cache = backend.NewListingCache(backend.DefaultListingTTL)
	}
	if c.Logger == nil {
		c.Logger = log.Discard()
	}
}

// BunnyBackend talks to the BunnyCDN storage REST API. The API has no
// single-object stat, so StatObject answers from cached parent listings.
type BunnyBackend struct {
	mu sync.RWMutex

	client *http.Client
	cache  *backend.ListingCache
	cfg    Config

	wd     *backend.Workdir
	logger *log.Logger
}

func NewBunnyBackend(cfg Config) (*BunnyBackend, error) {
	if err := cfg.validate(); err != nil {
		return nil, data.NewPathError("open", cfg.Zone, errors.Join(data.ErrInvalid, err))
	}
	cfg.setDefaults()

	return &BunnyBackend{
		client: cfg.HTTPClient,
		cache:  cfg.Cache,
		cfg:    cfg,
		wd:     backend.NewWorkdir(false),
		logger: cfg.Logger.Named("bunny"),
	}, nil
}

// Returns the identifier name defined for this backend
func (*BunnyBackend) Name() string {
	return "bunny"
}

// Open lists the zone root to verify the access key.
func (bb *BunnyBackend) Open(ctx context.Context) error {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	if _, err := bb.fetch(ctx, ""); err != nil {
		if errors.Is(err, data.ErrPermission) || errors.Is(err, data.ErrNotExist) {
			return data.NewPathError("open", bb.cfg.Zone, errors.Join(data.ErrOpenFailed, err))
		}
		return err
	}

	bb.logger.Debug("Opened storage zone '%s' at %s", bb.cfg.Zone, bb.cfg.Endpoint)
	return nil
}

// Close releases idle connections of the pooled client.
func (bb *BunnyBackend) Close(ctx context.Context) error {
	bb.client.CloseIdleConnections()
	return nil
}

// GetCapabilities returns a list of capabilities supported by this backend.
func (bb *BunnyBackend) GetCapabilities() *backend.BackendCapabilities {
	return &backend.BackendCapabilities{
		Capabilities: []backend.BackendCapability{
			backend.CapabilityObjectStorage,
			backend.CapabilityStreaming,
			backend.CapabilityRangeRead,
			backend.CapabilityPrefixDelete,
			backend.CapabilityListingCache,
		},
	}
}

func (bb *BunnyBackend) CurrentDirectory() string {
	return bb.wd.Current()
}

func (bb *BunnyBackend) ChangeDirectory(ctx context.Context, path string) error {
	key, err := bb.wd.Resolve(path)
	if err != nil {
		return err
	}

	bb.wd.Set(key)
	return nil
}

// namespace separates cache entries of different zones.
func (bb *BunnyBackend) namespace() string {
	return bb.cfg.Endpoint + "/" + bb.cfg.Zone
}

// objectURL returns the escaped URL of key; directories end with "/".
func (bb *BunnyBackend) objectURL(key string, dir bool) string {
	var sb strings.Builder
	sb.WriteString(bb.cfg.Endpoint)
	sb.WriteString("/")
	sb.WriteString(url.PathEscape(bb.cfg.Zone))
	sb.WriteString("/")

	if key != "" {
		segments := strings.Split(key, data.Separator)
		for i, segment := range segments {
			segments[i] = url.PathEscape(segment)
		}
		sb.WriteString(strings.Join(segments, data.Separator))
		if dir {
			sb.WriteString("/")
		}
	}

	return sb.String()
}

func (bb *BunnyBackend) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("AccessKey", bb.cfg.AccessKey)
	return req, nil
}

// StatusError carries a non-success HTTP status of the storage API.
type StatusError struct {
	Method string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Method, e.Status)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Method, e.Status, e.Body)
}

// statusError consumes resp and maps its status to the package sentinels.
func statusError(op, key string, resp *http.Response) error {
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	cause := &StatusError{
		Method: resp.Request.Method,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return data.NewPathError(op, key, errors.Join(data.ErrNotExist, cause))
	case http.StatusUnauthorized, http.StatusForbidden:
		return data.NewPathError(op, key, errors.Join(data.ErrPermission, cause))
	default:
		return data.Transport(op, key, cause)
	}
}
