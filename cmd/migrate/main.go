package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/config"
	"github.com/squigly/coach-api/pkg/logger"
)

func main() {
	var (
		dsn            string
		migrationsPath string
		direction      string
		steps          int
	)

	flag.StringVar(&dsn, "db", "", "Database URL; defaults to the database section of the app config")
	flag.StringVar(&migrationsPath, "path", "./migrations", "Path to migrations directory")
	flag.StringVar(&direction, "direction", "up", "Migration direction: up or down")
	flag.IntVar(&steps, "steps", 0, "Number of steps to migrate (0 means all)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, ""); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if dsn == "" {
		dsn = cfg.Database.DSN()
	}

	if err := migrateDB(dsn, migrationsPath, direction, steps); err != nil {
		logger.Log.Fatal("Migration failed", zap.Error(err))
	}
}

func migrateDB(dsn, migrationsPath, direction string, steps int) error {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("invalid direction %q (must be up or down)", direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Log.Info("Migration completed", zap.String("version", "none"))
	case err != nil:
		return fmt.Errorf("read migration version: %w", err)
	default:
		logger.Log.Info("Migration completed", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}
