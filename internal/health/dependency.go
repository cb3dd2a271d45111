package health

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
)

var errAccountsTableMissing = errors.New("accounts table missing; run migrate up")

// DBChecker reports ready only when the credential store answers and its
// schema has been migrated.
type DBChecker struct {
	db *gorm.DB
}

func NewDBChecker(db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return &DBChecker{db: db}
}

func (c *DBChecker) Check(ctx context.Context) CheckResult {
	return resultFor("db", c.check(ctx))
}

func (c *DBChecker) check(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}
	if !c.db.WithContext(ctx).Migrator().HasTable(&domain.Account{}) {
		return errAccountsTableMissing
	}
	return nil
}

// RedisChecker is only registered when the account list cache is
// Redis-backed.
type RedisChecker struct {
	client redis.UniversalClient
}

func NewRedisChecker(client redis.UniversalClient) Checker {
	if client == nil {
		return nil
	}
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	return resultFor("redis", c.client.Ping(ctx).Err())
}

func resultFor(name string, err error) CheckResult {
	if err != nil {
		return CheckResult{Name: name, Healthy: false, Error: err.Error()}
	}
	return CheckResult{Name: name, Healthy: true}
}
