package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/birdhomie/internal/errors"
)

// SQLiteManager handles a single-file SQLite database
type SQLiteManager struct {
	db     *gorm.DB
	dbPath string
}

// NewSQLiteManager opens (creating if needed) the database at dbPath.
// ":memory:" opens a private in-memory database.
func NewSQLiteManager(dbPath string, log gormlogger.Interface) (*SQLiteManager, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, errors.FileError(err, dbPath)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", dbPath)

	cfg := &gorm.Config{}
	if log != nil {
		cfg.Logger = log
	} else {
		cfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open sqlite database: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", dbPath).
			Build()
	}

	// one writer at a time; WAL readers are unaffected
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &SQLiteManager{db: db, dbPath: dbPath}, nil
}

// Initialize migrates the schema
func (m *SQLiteManager) Initialize() error {
	return migrate(m.db)
}

func (m *SQLiteManager) DB() *gorm.DB {
	return m.db
}

func (m *SQLiteManager) Path() string {
	return m.dbPath
}

func (m *SQLiteManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

func (m *SQLiteManager) IsMySQL() bool {
	return false
}
