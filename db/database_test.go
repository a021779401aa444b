package db

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type migrationProbe struct {
	ID   uint
	Name string
}

func TestOpenMigrateClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	conn, err := Open(path, "production", zerolog.Nop())
	require.NoError(t, err)

	assert.NoError(t, AutoMigrate(conn, &migrationProbe{}))
	assert.True(t, conn.Migrator().HasTable(&migrationProbe{}))

	assert.NoError(t, Close(conn))
}

func TestAutoMigrateWithoutConnection(t *testing.T) {
	err := AutoMigrate(nil, &migrationProbe{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestCloseNil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
