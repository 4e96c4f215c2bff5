package testutil

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/birdhomie/internal/datastore"
	"github.com/tphakala/birdhomie/internal/logger"
)

// NewSQLiteDB opens a migrated sqlite database in a temp dir, closed at test end.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	mgr, err := datastore.NewSQLiteManager(filepath.Join(t.TempDir(), "birdhomie.db"), nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Initialize())
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr.DB()
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}
