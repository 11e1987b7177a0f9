package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/models"
	migrate "github.com/golang-migrate/migrate/v4"
	// registers the postgres driver for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var requiredTables = []string{"users", "chantiers", "commandes", "etat_avancements", "notification_types"}

// Migrate applies the schema. With sqlMigrations set on PostgreSQL the embedded SQL files run
// through golang-migrate; otherwise AutoMigrate is used (sqlite, dev and tests).
func Migrate(d *gorm.DB, sqlMigrations bool, migrateURL string, log *logger.Logger) error {
	if sqlMigrations && IsPostgres(d) {
		log.Info("running sql migrations")
		if err := runSQLMigrations(migrateURL); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
	} else {
		for _, m := range models.All() {
			if err := d.AutoMigrate(m); err != nil {
				return fmt.Errorf("automigrate %T: %w", m, err)
			}
		}
	}

	for _, table := range requiredTables {
		if !d.Migrator().HasTable(table) {
			return errors.New("missing table after migration: " + table)
		}
	}
	return nil
}

func runSQLMigrations(url string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, ToURLDSN(url))
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
