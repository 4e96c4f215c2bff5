package datastore

import (
	"fmt"
	"net"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/birdhomie/internal/errors"
)

// MySQLConfig holds MySQL connection settings
type MySQLConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// DSN renders the connection string
func (c *MySQLConfig) DSN() string {
	cfg := gomysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, c.Port)
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// MySQLManager handles a MySQL database
type MySQLManager struct {
	db       *gorm.DB
	location string
}

// NewMySQLManager connects to MySQL and configures the connection pool
func NewMySQLManager(cfg *MySQLConfig, log gormlogger.Interface) (*MySQLManager, error) {
	gcfg := &gorm.Config{}
	if log != nil {
		gcfg.Logger = log
	} else {
		gcfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	location := fmt.Sprintf("%s/%s", net.JoinHostPort(cfg.Host, cfg.Port), cfg.Database)

	db, err := gorm.Open(mysql.Open(cfg.DSN()), gcfg)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open mysql database: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("location", location).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &MySQLManager{db: db, location: location}, nil
}

// Initialize migrates the schema
func (m *MySQLManager) Initialize() error {
	return migrate(m.db)
}

func (m *MySQLManager) DB() *gorm.DB {
	return m.db
}

func (m *MySQLManager) Path() string {
	return m.location
}

func (m *MySQLManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

func (m *MySQLManager) IsMySQL() bool {
	return true
}
