package consul

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
	"github.com/mwantia/unifs/log"
)

const (
	DefaultAddress = "127.0.0.1:8500"

	// MaxTxnOps is the operation limit of a single Consul transaction.
	MaxTxnOps = 64
	// MaxCASAttempts bounds retries of conflicting partial writes.
	MaxCASAttempts = 5
)

// Config configures a ConsulBackend.
type Config struct {
	// Address of the Consul agent (default: "127.0.0.1:8500")
	Address string
	// Scheme is "http" or "https" (default: "http")
	Scheme string

	// Token for Consul ACL authentication (optional)
	Token string
	// Datacenter to use (optional)
	Datacenter string
	// Namespace for Consul Enterprise (optional)
	Namespace string

	// Prefix for all keys, e.g. "unifs/media"; empty uses the whole store.
	Prefix string

	Logger *log.Logger
}

func (c *Config) setDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	c.Prefix = strings.Trim(c.Prefix, data.Separator)

	if c.Logger == nil {
		c.Logger = log.Discard()
	}
}

// ConsulBackend stores objects as Consul KV pairs.
//
// Architecture:
// - Every file is one key below the configured prefix; directories are
// implied by key prefixes and never stored
// - The modification time is kept in the pair Flags as unix seconds
// - Renames run as KV transactions
//
// Limitations:
// - Consul KV has a 512KB limit per value
type ConsulBackend struct {
	mu     sync.RWMutex
	client *api.Client
	kv     *api.KV

	cfg    Config
	wd     *backend.Workdir
	logger *log.Logger
}

func NewConsulBackend(cfg Config) (*ConsulBackend, error) {
	cfg.setDefaults()

	clientConfig := api.DefaultConfig()
	clientConfig.Address = cfg.Address
	if cfg.Scheme != "" {
		clientConfig.Scheme = cfg.Scheme
	}
	if cfg.Token != "" {
		clientConfig.Token = cfg.Token
	}
	if cfg.Datacenter != "" {
		clientConfig.Datacenter = cfg.Datacenter
	}
	if cfg.Namespace != "" {
		clientConfig.Namespace = cfg.Namespace
	}

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, data.NewPathError("open", cfg.Prefix, errors.Join(data.ErrInvalid, err))
	}

	return &ConsulBackend{
		client: client,
		kv:     client.KV(),
		cfg:    cfg,
		wd:     backend.NewWorkdir(false),
		logger: cfg.Logger.Named("consul"),
	}, nil
}

// Name returns the identifier name defined for this backend
func (*ConsulBackend) Name() string {
	return "consul"
}

// Open verifies the agent is reachable and the cluster has a leader.
func (cb *ConsulBackend) Open(ctx context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	leader, err := cb.client.Status().LeaderWithQueryOptions((&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return data.NewPathError("open", cb.cfg.Address, errors.Join(data.ErrOpenFailed, err))
	}

	cb.logger.Debug("Opened Consul KV at %s (leader %s, prefix '%s')", cb.cfg.Address, leader, cb.cfg.Prefix)
	return nil
}

// Close is part of the lifecycle behaviour; the client is stateless.
func (cb *ConsulBackend) Close(ctx context.Context) error {
	return nil
}

// GetCapabilities returns a list of capabilities supported by this backend
func (cb *ConsulBackend) GetCapabilities() *backend.BackendCapabilities {
	return &backend.BackendCapabilities{
		Capabilities: []backend.BackendCapability{
			backend.CapabilityObjectStorage,
			backend.CapabilityRangeRead,
			backend.CapabilityAppend,
			backend.CapabilityOffsetWrite,
			backend.CapabilityPrefixDelete,
			backend.CapabilityAtomicRename,
		},
		// Consul KV has a default limit of 512KB per value
		MaxObjectSize: 512 * 1024,
	}
}

func (cb *ConsulBackend) CurrentDirectory() string {
	return cb.wd.Current()
}

func (cb *ConsulBackend) ChangeDirectory(ctx context.Context, path string) error {
	key, err := cb.wd.Resolve(path)
	if err != nil {
		return err
	}

	cb.wd.Set(key)
	return nil
}

// buildKey constructs the full Consul KV key from the object key
func (cb *ConsulBackend) buildKey(key string) string {
	if cb.cfg.Prefix == "" {
		return key
	}
	if key == "" {
		return cb.cfg.Prefix
	}

	return cb.cfg.Prefix + data.Separator + key
}

// buildPrefix returns the "/"-terminated KV prefix of the directory key.
func (cb *ConsulBackend) buildPrefix(key string) string {
	return data.DirectoryPrefix(cb.buildKey(key))
}

func (cb *ConsulBackend) queryOptions(ctx context.Context) *api.QueryOptions {
	return (&api.QueryOptions{}).WithContext(ctx)
}

func (cb *ConsulBackend) writeOptions(ctx context.Context) *api.WriteOptions {
	return (&api.WriteOptions{}).WithContext(ctx)
}
