// Package repositories provides the data access layer. It owns the
// database handle, connection pooling and schema migration; all persistence
// goes through the repository interfaces defined here.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"peza/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DBConfig holds connection and pool settings.
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Database is the application-owned connection handle. It is created once
// at startup, injected into the repositories, and closed on shutdown; there
// is no package-level instance.
type Database struct {
	Gorm *gorm.DB
	sql  *sql.DB
}

// Open connects to Postgres, tunes the pool and migrates the schema.
func Open(cfg DBConfig) (*Database, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		// Surfaces unique violations as gorm.ErrDuplicatedKey, which the
		// repository maps to ErrDuplicateReference.
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.AutoMigrate(
		&models.Wallet{},
		&models.Transaction{},
		&models.VirtualAccount{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{Gorm: db, sql: sqlDB}, nil
}

// Ping verifies the connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

// Stats exposes pool statistics for the periodic log line.
func (d *Database) Stats() sql.DBStats {
	return d.sql.Stats()
}

// Close releases the connection pool.
func (d *Database) Close() error {
	return d.sql.Close()
}
