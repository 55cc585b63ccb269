// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// NewMigrator はPostgreSQL用のmigrateインスタンスを生成する。
// databaseURLはPostgreSQLの接続URLを指定する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations/postgres")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はPostgreSQLにすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// NewSQLiteMigrator は開いているSQLite接続に対するmigrateインスタンスを生成する。
// ":memory:"のデータベースは接続を共有しないと見えないため、URLではなく*sql.DBを受け取る。
// 返したインスタンスのCloseはdbも閉じる。
func NewSQLiteMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations/sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunSQLiteMigrations はSQLiteにすべてのマイグレーションを適用する。
// dbは呼び出し元が引き続き使用するため、migrateインスタンスは閉じない。
func RunSQLiteMigrations(db *sql.DB) error {
	m, err := NewSQLiteMigrator(db)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Migrate はドライバに応じてマイグレーションを適用する。memoryドライバでは何もしない。
func Migrate(driver, databaseURL string, db *sql.DB) error {
	switch driver {
	case DriverPostgres:
		return RunMigrations(databaseURL)
	case DriverSQLite:
		return RunSQLiteMigrations(db)
	case DriverMemory:
		return nil
	default:
		return fmt.Errorf("unsupported database driver: %q", driver)
	}
}
