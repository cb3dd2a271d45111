package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/carspot-identity-service/internal/config"
	"github.com/sandeepkv93/carspot-identity-service/internal/observability"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database named by cfg.DatabaseURL. The driver is picked
// from the DSN scheme: postgres:// or postgresql://, mysql://, sqlite:// or file:.
func Open(cfg *config.Config) (*gorm.DB, error) {
	return OpenDSN(cfg.DatabaseURL, logger.Warn)
}

func OpenDSN(dsn string, level logger.LogLevel) (*gorm.DB, error) {
	start := time.Now()
	ctx := context.Background()
	dialector, err := dialectorFor(dsn)
	if err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "open", "error")
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	observability.RecordDatabaseStartupDuration(ctx, "open", time.Since(start))
	if err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "open", "error")
		return nil, fmt.Errorf("open database: %w", err)
	}
	if strings.HasPrefix(dsn, "sqlite://") || strings.HasPrefix(dsn, "file:") {
		// sqlite serialises writers; a single connection avoids SQLITE_BUSY.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	observability.RecordDatabaseStartupEvent(ctx, "open", "success")
	return db, nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "mysql://"):
		return mysql.Open(strings.TrimPrefix(dsn, "mysql://")), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), nil
	case strings.HasPrefix(dsn, "file:"):
		return sqlite.Open(dsn), nil
	case dsn == "":
		return nil, fmt.Errorf("database url is empty")
	default:
		return nil, fmt.Errorf("unsupported database url scheme")
	}
}
