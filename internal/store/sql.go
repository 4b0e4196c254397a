package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	config "example.com/ribbit/internal/init"
	"example.com/ribbit/internal/models"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

//go:embed migrations
var migrationsFS embed.FS

// SQLStore implements StoreInterface on top of gorm.
type SQLStore struct {
	db *gorm.DB
}

// NewSQL connects to postgres, mysql or sqlite and migrates the schema.
func NewSQL(cfg *config.Config) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch cfg.StoreDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseDSN)
	case "mysql":
		dialector = mysql.Open(cfg.DatabaseDSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported sql driver: %q", cfg.StoreDriver)
	}

	if cfg.StoreDriver != "sqlite" {
		if err := MigrateSQL(cfg.StoreDriver, cfg.DatabaseDSN, "up"); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(cfg.DBSlowThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.StoreDriver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if cfg.StoreDriver == "sqlite" {
		if err := autoMigrate(db); err != nil {
			return nil, err
		}
	}

	logg.Info("store", "Connected to "+cfg.StoreDriver+" database (DSN anonymized)")
	return &SQLStore{db: db}, nil
}

// NewSQLite opens an sqlite database at dsn with the schema in place. Tests use
// it with in-memory DSNs.
func NewSQLite(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         newGormLogger(0),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := autoMigrate(db); err != nil {
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.UserProfile{}, &models.Follow{}, &models.Ribbit{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// MigrateSQL applies the embedded migrations for driver in the given direction ("up" or "down").
func MigrateSQL(driver, dsn, direction string) error {
	var (
		sqlDriver string
		openDSN   = dsn
	)
	switch driver {
	case "postgres":
		sqlDriver = "pgx"
	case "mysql":
		sqlDriver = "mysql"
		if !strings.Contains(dsn, "multiStatements=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			openDSN = dsn + sep + "multiStatements=true"
		}
	default:
		return fmt.Errorf("no sql migrations for driver %q", driver)
	}

	conn, err := sql.Open(sqlDriver, openDSN)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}

	var dbDriver database.Driver
	if driver == "postgres" {
		dbDriver, err = migratepgx.WithInstance(conn, &migratepgx.Config{})
	} else {
		dbDriver, err = migratemysql.WithInstance(conn, &migratemysql.Config{})
	}
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	return runMigrations(driver, dbDriver, direction)
}

func runMigrations(driver string, dbDriver database.Driver, direction string) error {
	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		_ = dbDriver.Close()
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, dbDriver)
	if err != nil {
		_ = src.Close()
		_ = dbDriver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m.Close closes both the source and the database driver.
	defer m.Close()

	return applyMigrations(m, direction)
}

func applyMigrations(m *migrate.Migrate, direction string) error {
	switch direction {
	case "up", "":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logg.Info("store", "No new migrations to apply")
			return nil
		}
		if err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logg.Info("store", "Migrations applied successfully")
	case "down":
		err := m.Down()
		if errors.Is(err, migrate.ErrNoChange) {
			logg.Info("store", "No migrations to roll back")
			return nil
		}
		if err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logg.Info("store", "Migrations rolled back")
	default:
		return fmt.Errorf("unknown migration direction: %q", direction)
	}
	return nil
}

// notFound maps gorm's missing-row error onto ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() {
	sqlDB, err := s.db.DB()
	if err != nil {
		logg.Error("store", "Failed to get sql.DB for close", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		logg.Error("store", "Failed to close database", err)
		return
	}
	logg.Info("store", "Database connection closed")
}
