package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/repo-research/internal/circuitbreaker"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds database configuration
type Config struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"` // sqlite file, ":memory:" allowed
	MaxConnections  int           `mapstructure:"max_connections"`
	IdleConnections int           `mapstructure:"idle_connections"`
	MaxLifetime     time.Duration `mapstructure:"max_lifetime"`
}

// Client manages the database pool backing the workflow store
type Client struct {
	db      *sqlx.DB
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient opens and pings a database connection pool
func NewClient(ctx context.Context, config Config, logger *zap.Logger) (*Client, error) {
	if config.Driver == "" {
		config.Driver = DriverPostgres
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 25
	}
	if config.IdleConnections == 0 {
		config.IdleConnections = 5
	}
	if config.MaxLifetime == 0 {
		config.MaxLifetime = 5 * time.Minute
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	dsn, err := config.DSN()
	if err != nil {
		return nil, err
	}

	raw, err := sqlx.Open(config.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.Driver == DriverSQLite {
		// database/sql gives each connection its own :memory: database; one writer keeps sqlite consistent.
		raw.SetMaxOpenConns(1)
	} else {
		raw.SetMaxOpenConns(config.MaxConnections)
		raw.SetMaxIdleConns(config.IdleConnections)
	}
	raw.SetConnMaxLifetime(config.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := raw.PingContext(pingCtx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database client initialized",
		zap.String("driver", config.Driver),
		zap.String("host", config.Host),
		zap.Int("max_connections", config.MaxConnections),
	)
	return NewClientFromDB(raw, logger), nil
}

// NewClientFromDB wraps an existing pool
func NewClientFromDB(db *sqlx.DB, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		db:      db,
		breaker: circuitbreaker.NewCircuitBreaker("database", circuitbreaker.Instrument(circuitbreaker.DefaultConfig()), logger),
		logger:  logger,
	}
}

// DSN renders the driver-specific connection string
func (c Config) DSN() (string, error) {
	switch c.Driver {
	case DriverPostgres:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
		), nil
	case DriverSQLite:
		if c.Path == "" {
			return "", fmt.Errorf("sqlite driver requires database.path")
		}
		return c.Path, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

// DB exposes the underlying pool
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the pool
func (c *Client) Close() error {
	c.logger.Info("Closing database client")
	return c.db.Close()
}

// exec runs fn through the database circuit breaker
func (c *Client) exec(ctx context.Context, fn func() error) error {
	err := c.breaker.Execute(ctx, fn)
	circuitbreaker.RecordRequest(c.breaker.Name(), err)
	return err
}
