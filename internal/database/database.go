package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/zynkhq/zynk/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the configured database and migrates the schema.
func Connect(cfg config.DatabaseConfig, logger hclog.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	if cfg.LogQueries {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	switch cfg.Type {
	case "postgres":
		db, err = gorm.Open(postgres.Open(postgresDSN(cfg)), gormCfg)
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err = gorm.Open(sqlite.Open(cfg.DatabasePath), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logger.Info("database initialized", "type", cfg.Type)
	return db, nil
}

// Migrate creates or updates the tables owned by this service.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&SessionRecord{}, &FeedbackSegment{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func postgresDSN(cfg config.DatabaseConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port)
}
