package helper

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabaseConfiguration(t *testing.T) {
	t.Run("Valid configuration from environment", func(t *testing.T) {
		SetTestDatabaseConfigEnvs(t, "5433")

		config, err := NewDatabaseConfiguration()
		require.NoError(t, err)
		assert.Equal(t, "localhost", config.Host)
		assert.Equal(t, "5433", config.Port)
		assert.Equal(t, "public", config.Schema)
		assert.Equal(t, "disable", config.SSLMode)
	})

	t.Run("Missing host is rejected", func(t *testing.T) {
		SetTestDatabaseConfigEnvs(t, "5433")
		t.Setenv(EnvDBHost, "")

		_, err := NewDatabaseConfiguration()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), EnvDBHost)
	})

	t.Run("Non numeric port is rejected", func(t *testing.T) {
		SetTestDatabaseConfigEnvs(t, "abc")

		_, err := NewDatabaseConfiguration()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid port")
	})
}

func TestConnectionString(t *testing.T) {
	config := &DatabaseConfiguration{
		Host:     "db",
		Port:     "5432",
		Database: "graph",
		Username: "user",
		Password: "p@ss",
		Schema:   "rag",
		SSLMode:  "disable",
	}

	dsn := config.ConnectionString()
	assert.Contains(t, dsn, "postgres://user:p%40ss@db:5432/graph")
	assert.Contains(t, dsn, "search_path=rag")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestNewError(t *testing.T) {
	t.Run("Nil error stays nil", func(t *testing.T) {
		assert.NoError(t, NewError("noop", nil))
	})

	t.Run("Wrapped error keeps operation and cause", func(t *testing.T) {
		err := NewError("read file", fs.ErrNotExist)
		assert.EqualError(t, err, "read file: file does not exist")
		assert.True(t, errors.Is(err, fs.ErrNotExist))

		var opErr *Error
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, "read file", opErr.Operation)
	})
}
