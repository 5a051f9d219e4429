package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"PerpCore/internal/persistence"
)

func main() {
	var (
		dsn = flag.String("dsn", os.Getenv("POSTGRES_URL"),
			"Postgres connection string (or POSTGRES_URL)")
		dir = flag.String("dir", envOr("MIGRATIONS_DIR", "migrations"),
			"migrations directory")
		timeout = flag.Duration("timeout", 2*time.Minute, "overall timeout")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	if *dsn == "" {
		*dsn = "postgres://localhost:5432/perpcore?sslmode=disable"
	}

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		log.Fatalf("FATAL: open db: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("FATAL: ping db: %v", err)
	}

	migrator := persistence.NewMigrator(db, *dir)

	switch cmd := flag.Arg(0); cmd {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			log.Fatalf("FATAL: migrate up: %v", err)
		}
		log.Println("INFO: all migrations applied")
	case "down":
		if err := migrator.Down(ctx); err != nil {
			log.Fatalf("FATAL: migrate down: %v", err)
		}
		log.Println("INFO: last migration rolled back")
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (use up or down)\n", cmd)
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [flags] <up|down>")
	fmt.Fprintln(os.Stderr, "  up    apply all pending migrations")
	fmt.Fprintln(os.Stderr, "  down  roll back the last migration")
	fmt.Fprintln(os.Stderr)
	flag.PrintDefaults()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
