package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
	"github.com/mwantia/unifs/log"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Dialect selects the SQL flavor and driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const (
	DefaultPageSize = 500
	MemoryDSN       = ":memory:"
)

// Config configures a SQLBackend.
type Config struct {
	Dialect Dialect
	// DSN is a file path or ":memory:" for SQLite and a connection string
	// or URL for PostgreSQL.
	DSN string

	// PageSize is the number of rows fetched per listing query.
	PageSize int

	Logger *log.Logger
}

func (c *Config) validate() error {
	switch c.Dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return fmt.Errorf("unknown dialect '%s'", c.Dialect)
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required")
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Logger == nil {
		c.Logger = log.Discard()
	}
}

// SQLBackend stores objects as rows of the unifs_objects table. Directories
// are implied by key prefixes; keys are compared bytewise so that a key
// range selects exactly one directory subtree.
type SQLBackend struct {
	mu sync.RWMutex
	db *sql.DB

	cfg    Config
	wd     *backend.Workdir
	logger *log.Logger
}

func NewSQLBackend(cfg Config) (*SQLBackend, error) {
	if err := cfg.validate(); err != nil {
		return nil, data.NewPathError("open", string(cfg.Dialect), errors.Join(data.ErrInvalid, err))
	}
	cfg.setDefaults()

	db, err := openDB(cfg)
	if err != nil {
		return nil, data.NewPathError("open", string(cfg.Dialect), errors.Join(data.ErrOpenFailed, err))
	}

	return &SQLBackend{
		db:     db,
		cfg:    cfg,
		wd:     backend.NewWorkdir(false),
		logger: cfg.Logger.Named(string(cfg.Dialect)),
	}, nil
}

func openDB(cfg Config) (*sql.DB, error) {
	if cfg.Dialect == DialectPostgres {
		config, err := pgx.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("invalid connection string: %w", err)
		}
		// Avoid prepared statement collisions on pooled connections
		config.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		return stdlib.OpenDB(*config), nil
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Every connection to ":memory:" opens its own database
	if cfg.DSN == MemoryDSN {
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

// Returns the identifier name defined for this backend
func (sb *SQLBackend) Name() string {
	return string(sb.cfg.Dialect)
}

// Open verifies the connection and creates the schema.
func (sb *SQLBackend) Open(ctx context.Context) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if err := sb.db.PingContext(ctx); err != nil {
		return data.NewPathError("open", sb.Name(), errors.Join(data.ErrOpenFailed, err))
	}

	for _, statement := range sb.schema() {
		if _, err := sb.db.ExecContext(ctx, statement); err != nil {
			return data.NewPathError("open", sb.Name(), errors.Join(data.ErrOpenFailed, err))
		}
	}

	sb.logger.Debug("Opened %s database", sb.Name())
	return nil
}

func (sb *SQLBackend) schema() []string {
	if sb.cfg.Dialect == DialectPostgres {
		return []string{`
		CREATE TABLE IF NOT EXISTS unifs_objects (
			key TEXT COLLATE "C" PRIMARY KEY,
			content BYTEA NOT NULL,
			size BIGINT NOT NULL DEFAULT 0,
			create_time BIGINT NOT NULL,
			modify_time BIGINT NOT NULL,
			access_time BIGINT NOT NULL
		)`}
	}

	statements := []string{`
	CREATE TABLE IF NOT EXISTS unifs_objects (
		key TEXT PRIMARY KEY,
		content BLOB NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		create_time INTEGER NOT NULL,
		modify_time INTEGER NOT NULL,
		access_time INTEGER NOT NULL
	)`}
	if sb.cfg.DSN != MemoryDSN {
		statements = append(statements, "PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000")
	}

	return statements
}

// Close closes the database handle.
func (sb *SQLBackend) Close(ctx context.Context) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	return sb.db.Close()
}

// GetCapabilities returns a list of capabilities supported by this backend.
func (sb *SQLBackend) GetCapabilities() *backend.BackendCapabilities {
	return &backend.BackendCapabilities{
		Capabilities: []backend.BackendCapability{
			backend.CapabilityObjectStorage,
			backend.CapabilityRangeRead,
			backend.CapabilityAppend,
			backend.CapabilityOffsetWrite,
			backend.CapabilityPrefixDelete,
			backend.CapabilityAtomicRename,
		},
	}
}

func (sb *SQLBackend) CurrentDirectory() string {
	return sb.wd.Current()
}

func (sb *SQLBackend) ChangeDirectory(ctx context.Context, path string) error {
	key, err := sb.wd.Resolve(path)
	if err != nil {
		return err
	}

	sb.wd.Set(key)
	return nil
}

// rebind rewrites "?" placeholders to "$n" for PostgreSQL.
func (sb *SQLBackend) rebind(query string) string {
	if sb.cfg.Dialect != DialectPostgres {
		return query
	}

	var out strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			out.WriteString("$")
			out.WriteString(strconv.Itoa(n))
			continue
		}
		out.WriteRune(r)
	}

	return out.String()
}

// subtree returns the bounds of every key below the directory key; the
// upper bound is empty for the root.
func subtree(key string) (lower, upper string) {
	lower = data.DirectoryPrefix(key)
	if lower == "" {
		return "", ""
	}

	// '0' directly follows the separator
	return lower, lower[:len(lower)-1] + "0"
}
