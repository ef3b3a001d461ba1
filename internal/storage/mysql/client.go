package mysql

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	connectAttempts = 10
	connectBackoff  = 2 * time.Second
)

// Open connects with retries, sizes the pool from cfg and migrates the schema.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Store, error) {
	return openDSN(ctx, cfg.DSN(), cfg, log)
}

func openDSN(ctx context.Context, dsn string, cfg Config, log *slog.Logger) (*Store, error) {
	gormConfig := &gorm.Config{
		// writes that need atomicity open their own transaction
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 newLogger(cfg.LogLevel),
	}

	var db *gorm.DB
	var err error
	for i := 0; i < connectAttempts; i++ {
		db, err = gorm.Open(mysql.Open(dsn), gormConfig)
		if err == nil {
			sqlDB, dbErr := db.DB()
			if dbErr == nil {
				if err = sqlDB.PingContext(ctx); err == nil {
					break
				}
			} else {
				err = dbErr
			}
		}
		if i < connectAttempts-1 {
			log.Warn("mysql connect failed; retrying", "attempt", i+1, "max", connectAttempts, "err", err, "backoff", connectBackoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(connectBackoff):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to mysql after %d attempts: %w", connectAttempts, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.WithContext(ctx).AutoMigrate(&accountRow{}, &transactionRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate mysql schema: %w", err)
	}
	return &Store{db: db}, nil
}

func newLogger(level string) logger.Interface {
	var lvl logger.LogLevel
	switch level {
	case "info":
		lvl = logger.Info
	case "warn":
		lvl = logger.Warn
	case "silent":
		lvl = logger.Silent
	default:
		lvl = logger.Error
	}
	return logger.Default.LogMode(lvl)
}
