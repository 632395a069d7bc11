// Command migrate applies or rolls back the embedded database schema.
//
//	migrate            apply all pending migrations
//	migrate -down      roll back one migration
//	migrate -version   print the current schema version
//
// The database is taken from -database-url, then DATABASE_URL, then the DB_*
// variables used by the server.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/db/migrations"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() (err error) {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "postgres connection URL")
		down        = flag.Bool("down", false, "roll back one migration")
		version     = flag.Bool("version", false, "print the current schema version and exit")
	)
	flag.Parse()

	if env := os.Getenv("APP_ENV"); env == "development" || env == "test" {
		_ = godotenv.Load("../.env", ".env")
	}

	url := *databaseURL
	if url == "" {
		dbCfg, err := config.LoadDatabase()
		if err != nil {
			return err
		}
		url = dbCfg.URL()
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	m, err := migrations.New(url, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	switch {
	case *version:
		v, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
		return nil
	case *down:
		return m.Down()
	default:
		return m.Up()
	}
}
