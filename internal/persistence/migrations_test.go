package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_limits.sql", "001_init.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o700))

	files, err := migrationFiles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"001_init.sql", "002_limits.sql"}, files)

	_, err = migrationFiles(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestShippedMigrationsAreFound(t *testing.T) {
	files, err := migrationFiles(filepath.Join("..", "..", DefaultMigrationsDir))
	require.NoError(t, err)
	require.Contains(t, files, "001_init.sql")
}

func TestRunMigrations_NoPool(t *testing.T) {
	require.NoError(t, RunMigrations(context.Background(), nil, "", zap.NewNop()))
}
