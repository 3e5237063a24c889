package helper

import (
	"context"
	"log"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testDBImage    = "pgvector/pgvector:pg16"
	testDBName     = "graphrag_test"
	testDBUser     = "graphrag"
	testDBPassword = "graphrag"
)

// MustStartPostgresContainer starts a pgvector enabled postgres container
// and returns its teardown function and the mapped host port.
func MustStartPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	container, err := postgres.Run(
		ctx,
		testDBImage,
		postgres.WithDatabase(testDBName),
		postgres.WithUsername(testDBUser),
		postgres.WithPassword(testDBPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, "", NewError("start postgres container", err)
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return container.Terminate, "", NewError("mapped port", err)
	}

	return container.Terminate, port.Port(), nil
}

// SetTestDatabaseConfigEnvs points the database configuration at the test container.
func SetTestDatabaseConfigEnvs(t *testing.T, port string) {
	t.Helper()
	t.Setenv(EnvDBHost, "localhost")
	t.Setenv(EnvDBPort, port)
	t.Setenv(EnvDBDatabase, testDBName)
	t.Setenv(EnvDBUsername, testDBUser)
	t.Setenv(EnvDBPassword, testDBPassword)
	t.Setenv(EnvDBSchema, "public")
	t.Setenv(EnvDBSSLMode, "disable")
}

// NewTestDatabase connects to the test database and exits the test binary on failure.
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	logger := slog.New(NewPrettyHandler(os.Stdout, PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{Level: slog.LevelWarn},
	}))

	database, err := NewDatabase("test_db", config, logger)
	if err != nil {
		log.Fatalf("error connecting to test database: %v", err)
	}
	return database
}
