package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gps-cli/internal/archive"
	"github.com/sells-group/gps-cli/internal/config"
	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
	"github.com/sells-group/gps-cli/internal/responses"
	"github.com/sells-group/gps-cli/internal/roster"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "test.db"),
		},
	}
}

func TestInitStore_SQLite(t *testing.T) {
	cfg = sqliteConfig(t)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	areas, err := st.ListAreas(context.Background())
	require.NoError(t, err, "schema is migrated on open")
	assert.Empty(t, areas)
}

func TestInitStore_SQLiteDefaultPath(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, "gps.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestSources_Store(t *testing.T) {
	cfg = sqliteConfig(t)
	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	rs, err := rosterSource(st)
	require.NoError(t, err)
	assert.IsType(t, &roster.StoreSource{}, rs)

	src, err := responseSource(st)
	require.NoError(t, err)
	assert.IsType(t, &responses.StoreSource{}, src)
}

func TestSources_External(t *testing.T) {
	cfg = sqliteConfig(t)
	cfg.Roster.Source = config.SourceSalesforce
	cfg.Responses.Source = config.SourceNotion
	cfg.Notion = config.NotionConfig{Token: "ntn_token", ResponsesDB: "db-id"}

	_, err := rosterSource(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce client ID is required")

	cfg.Salesforce = config.SalesforceConfig{ClientID: "cid", KeyPath: filepath.Join(t.TempDir(), "missing.pem")}
	_, err = rosterSource(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read salesforce JWT private key")

	src, err := responseSource(nil)
	require.NoError(t, err)
	assert.IsType(t, &responses.NotionSource{}, src)

	cfg.Responses.Source = "sheets"
	_, err = responseSource(nil)
	assert.Error(t, err)
}

func TestInitArchive(t *testing.T) {
	cfg = &config.Config{Archive: config.ArchiveConfig{Driver: "none"}}
	ar, closeFn, err := initArchive(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ar)
	closeFn()

	dir := t.TempDir()
	cfg.Archive = config.ArchiveConfig{Driver: "local", Path: dir}
	ar, closeFn, err = initArchive(context.Background())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &archive.Local{}, ar)

	cfg.Archive = config.ArchiveConfig{Driver: "tape"}
	_, _, err = initArchive(context.Background())
	assert.Error(t, err)
}

func TestMonthFlag(t *testing.T) {
	fallback := model.MustParseMonth("2025-02")

	m, err := monthFlag("", fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, m)

	m, err = monthFlag("2025-03", fallback)
	require.NoError(t, err)
	assert.Equal(t, model.MustParseMonth("2025-03"), m)

	_, err = monthFlag("March", fallback)
	var ve *resilience.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestLastMonth(t *testing.T) {
	assert.Equal(t, model.MustParseMonth("2024-12"), lastMonth(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, model.MustParseMonth("2025-02"), lastMonth(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
}
