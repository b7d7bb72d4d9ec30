package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	ingestiondomain "github.com/smallbiznis/wasteloop/internal/ingestion/domain"
	pickupdomain "github.com/smallbiznis/wasteloop/internal/pickup/domain"
	profiledomain "github.com/smallbiznis/wasteloop/internal/profile/domain"
	ledgerdomain "github.com/smallbiznis/wasteloop/internal/wasteledger/domain"
	"gorm.io/gorm"
)

// Models lists every table owned by the service, for dialects without
// embedded migrations.
func Models() []any {
	return []any{
		&profiledomain.UserProfile{},
		&ledgerdomain.Entry{},
		&pickupdomain.Request{},
		&ingestiondomain.Task{},
	}
}

// Migrate runs the SQL migrations on postgres and AutoMigrate elsewhere.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		return conn.AutoMigrate(Models()...)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

// RunMigrations applies the embedded postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
