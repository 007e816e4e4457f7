// Package testutil provides shared test helpers for databases, config files and deck fixtures.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/cardreview/internal/config"
	"github.com/at-ishikawa/cardreview/internal/database"
)

// NewSQLiteStore returns a store over a migrated in-memory database.
// The store is closed when the test finishes.
func NewSQLiteStore(t *testing.T) *database.Store {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Driver: database.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db))
	store := database.NewStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// ConfigOption configures optional sections of a generated config file.
type ConfigOption func(*testConfig)

type testConfig struct {
	collection []string
}

// WithCollectionValue sets a key of the collection section, e.g. WithCollectionValue("learning_steps", "[1m]").
func WithCollectionValue(key, value string) ConfigOption {
	return func(cfg *testConfig) {
		cfg.collection = append(cfg.collection, fmt.Sprintf("  %s: %s", key, value))
	}
}

// SetupTestConfig creates a config file using a SQLite database under tmpDir.
// Returns the path to the generated config file.
func SetupTestConfig(t *testing.T, tmpDir string, opts ...ConfigOption) string {
	t.Helper()

	var cfg testConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "database:\n  driver: %s\n  path: %s\n", database.DriverSQLite, filepath.Join(tmpDir, "cards.db"))
	if len(cfg.collection) > 0 {
		sb.WriteString("collection:\n")
		sb.WriteString(strings.Join(cfg.collection, "\n"))
		sb.WriteString("\n")
	}

	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(sb.String()), 0644))
	return cfgPath
}

// CreateDeckFile writes a deck with one note per front/back pair.
// Returns the path to the deck file.
func CreateDeckFile(t *testing.T, dir, name string, faces ...[2]string) string {
	t.Helper()

	var sb strings.Builder
	fmt.Fprintf(&sb, "name: %s\nnotes:\n", name)
	for _, face := range faces {
		fmt.Fprintf(&sb, "  - cards:\n      - front: %q\n        back: %q\n", face[0], face[1])
	}

	path := filepath.Join(dir, name+".yml")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))
	return path
}
