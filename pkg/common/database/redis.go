package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/chartreview/pkg/common/config"
	"github.com/synaptica-ai/chartreview/pkg/common/logger"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
)

// RedisOptions keeps per-command timeouts below the patient lock wait so a
// slow server fails a lock attempt instead of stalling the request.
func RedisOptions(cfg *config.Config) *redis.Options {
	opTimeout := time.Second
	if cfg.PatientLockWait > 0 && cfg.PatientLockWait/2 < opTimeout {
		opTimeout = cfg.PatientLockWait / 2
	}
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	}
}

func GetRedis(cfg *config.Config) *redis.Client {
	redisOnce.Do(func() {
		redisClient = redis.NewClient(RedisOptions(cfg))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Log.WithError(err).WithField("addr", redisClient.Options().Addr).Error("Failed to connect to Redis")
		} else {
			logger.Log.WithField("db", cfg.RedisDB).Info("Connected to Redis")
		}
	})

	return redisClient
}

// Ping checks both stores for the readiness endpoint.
func Ping(ctx context.Context) error {
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func CloseRedis() error {
	if redisClient != nil {
		return redisClient.Close()
	}
	return nil
}
