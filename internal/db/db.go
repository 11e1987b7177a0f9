// Package db opens the database, applies the schema and seeds reference data.
package db

import (
	"fmt"
	"time"

	"github.com/diewo77/go-btp/internal/config"
	"github.com/diewo77/go-btp/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	connectAttempts = 10
	connectBackoff  = 2 * time.Second
)

// Open connects to the configured database, retrying PostgreSQL while it boots.
func Open(cfg config.DatabaseConfig, log *logger.Logger) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:         newGormLogger(log, cfg.Debug),
		TranslateError: true,
	}

	if cfg.Driver == "sqlite" {
		d, err := gorm.Open(sqlite.Open(cfg.DSN()), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return d, nil
	}

	dsn := NormalizeDSN(cfg.DSN())
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_DSN est vide, vérifiez la configuration de l'environnement")
	}
	log.Info("connecting database", "dsn", MaskDSN(dsn))

	var (
		d   *gorm.DB
		err error
	)
	for i := 0; i < connectAttempts; i++ {
		d, err = gorm.Open(postgres.Open(dsn), gcfg)
		if err == nil {
			break
		}
		log.Warn("database not ready, retrying", "attempt", i+1, "error", err)
		time.Sleep(connectBackoff)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after retries: %w", err)
	}
	if err := d.Exec("SELECT 1").Error; err != nil {
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return d, nil
}

// IsPostgres reports whether d talks to PostgreSQL.
func IsPostgres(d *gorm.DB) bool {
	return d.Dialector.Name() == "postgres"
}

type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.SugaredLogger.Debugf(format, args...)
}

func newGormLogger(log *logger.Logger, debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return gormlogger.New(gormWriter{log: log.With("component", "gorm")}, gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}
