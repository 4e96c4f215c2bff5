// Package datastore opens the birdhomie database and owns its schema.
package datastore

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/birdhomie/internal/conf"
	"github.com/tphakala/birdhomie/internal/datastore/entities"
	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// Manager defines the lifecycle of a database backend
type Manager interface {
	// Initialize creates or migrates the schema
	Initialize() error
	// DB returns the underlying GORM database
	DB() *gorm.DB
	// Path describes the database location for logs
	Path() string
	Close() error
	IsMySQL() bool
}

// allEntities lists every migrated model
func allEntities() []any {
	return []any{
		&entities.File{},
		&entities.Visit{},
		&entities.Detection{},
		&entities.Taxon{},
		&entities.TaskRun{},
	}
}

// Open creates the manager selected by settings and initializes its schema
func Open(settings *conf.DatabaseSettings) (Manager, error) {
	slow := time.Duration(settings.SlowQueryMS) * time.Millisecond
	gormLog := logger.NewGormLogger(GetLogger(), slow, gorm.ErrRecordNotFound)

	var (
		mgr Manager
		err error
	)
	switch settings.Type {
	case conf.DatabaseMySQL:
		mgr, err = NewMySQLManager(&MySQLConfig{
			Host:     settings.MySQL.Host,
			Port:     settings.MySQL.Port,
			Username: settings.MySQL.Username,
			Password: settings.MySQL.Password,
			Database: settings.MySQL.Database,
		}, gormLog)
	case conf.DatabaseSQLite, "":
		mgr, err = NewSQLiteManager(settings.SQLite.Path, gormLog)
	default:
		return nil, errors.Newf("unsupported database type %q", settings.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, err
	}

	if err := mgr.Initialize(); err != nil {
		_ = mgr.Close()
		return nil, err
	}

	GetLogger().Info("database ready",
		logger.String("type", settings.Type),
		logger.String("location", mgr.Path()))
	return mgr, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allEntities()...); err != nil {
		return errors.New(fmt.Errorf("failed to migrate schema: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}
