package database

import (
	"context"
	"time"

	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
	"github.com/sandeepkv93/carspot-identity-service/internal/observability"

	"gorm.io/gorm"
)

// Models lists every table the service owns, in migration order.
func Models() []any {
	return []any{&domain.Account{}}
}

func Migrate(db *gorm.DB) error {
	start := time.Now()
	ctx := context.Background()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "migrate", time.Since(start))
	}()
	if err := db.AutoMigrate(Models()...); err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "migrate", "error")
		return err
	}
	observability.RecordDatabaseStartupEvent(ctx, "migrate", "success")
	return nil
}
