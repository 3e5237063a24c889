package helper

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// Querier is the subset of *sql.DB and *sql.Tx used by the database handlers.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Database wraps a postgres connection pool together with its logger.
type Database struct {
	Name     string
	Instance *sql.DB
	Logger   *slog.Logger
}

// DatabaseConfiguration holds the connection settings for postgres.
type DatabaseConfiguration struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
	SSLMode  string
}

const (
	EnvDBHost     = "GRAPHRAG_DB_HOST"
	EnvDBPort     = "GRAPHRAG_DB_PORT"
	EnvDBDatabase = "GRAPHRAG_DB_DATABASE"
	EnvDBUsername = "GRAPHRAG_DB_USERNAME"
	EnvDBPassword = "GRAPHRAG_DB_PASSWORD"
	EnvDBSchema   = "GRAPHRAG_DB_SCHEMA"
	EnvDBSSLMode  = "GRAPHRAG_DB_SSLMODE"
)

// NewDatabaseConfiguration reads the database configuration from the environment.
// A .env file in the working directory is loaded first if present; variables
// already set in the environment take precedence.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, NewError("load .env", err)
		}
	}

	config := &DatabaseConfiguration{
		Host:     os.Getenv(EnvDBHost),
		Port:     os.Getenv(EnvDBPort),
		Database: os.Getenv(EnvDBDatabase),
		Username: os.Getenv(EnvDBUsername),
		Password: os.Getenv(EnvDBPassword),
		Schema:   os.Getenv(EnvDBSchema),
		SSLMode:  os.Getenv(EnvDBSSLMode),
	}
	if config.Schema == "" {
		config.Schema = "public"
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks that all required connection settings are present.
func (c *DatabaseConfiguration) Validate() error {
	if c.Host == "" {
		return NewError("database configuration", fmt.Errorf("%s is not set", EnvDBHost))
	}
	if c.Port == "" {
		return NewError("database configuration", fmt.Errorf("%s is not set", EnvDBPort))
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return NewError("database configuration", fmt.Errorf("invalid port %q: %w", c.Port, err))
	}
	if c.Database == "" {
		return NewError("database configuration", fmt.Errorf("%s is not set", EnvDBDatabase))
	}
	if c.Username == "" {
		return NewError("database configuration", fmt.Errorf("%s is not set", EnvDBUsername))
	}
	return nil
}

// ConnectionString builds a lib/pq connection URL with the search path set to the schema.
func (c *DatabaseConfiguration) ConnectionString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   c.Database,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	if c.Schema != "" {
		q.Set("search_path", c.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// NewDatabase opens and pings a postgres connection pool.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) (*Database, error) {
	if config == nil {
		return nil, NewError("database configuration", fmt.Errorf("configuration is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	instance, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, NewError("open database", err)
	}
	instance.SetMaxOpenConns(25)
	instance.SetMaxIdleConns(5)
	instance.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := instance.PingContext(ctx); err != nil {
		instance.Close()
		return nil, NewError("ping database", err)
	}

	if config.Schema != "" && config.Schema != "public" {
		_, err = instance.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q;`, config.Schema))
		if err != nil {
			instance.Close()
			return nil, NewError("create schema", err)
		}
	}

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host), slog.String("database", config.Database))

	return &Database{
		Name:     name,
		Instance: instance,
		Logger:   logger,
	}, nil
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	if d == nil || d.Instance == nil {
		return nil
	}
	return d.Instance.Close()
}
