package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/chrissnell/shadowflicker/internal/log"
	"github.com/chrissnell/shadowflicker/internal/storage"
	"github.com/chrissnell/shadowflicker/pkg/migrate"
)

func main() {
	var (
		dbPath        = flag.String("db", "", "Path to the shadowflicker SQLite database")
		command       = flag.String("command", "status", "Migration command: up, to, version, status, purge-cache")
		targetVersion = flag.String("target", "", "Target version for the to command")
		debug         = flag.Bool("debug", false, "Turn on debugging output")
		helpFlag      = flag.Bool("help", false, "Show help")
	)

	flag.Parse()

	if *helpFlag {
		showHelp()
		return
	}

	if *dbPath == "" {
		fmt.Fprintf(os.Stderr, "Error: -db flag is required\n")
		showHelp()
		os.Exit(1)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *command == "purge-cache" {
		if err := purgeCache(*dbPath); err != nil {
			log.Fatalf("Failed to purge the solar cache: %v", err)
		}
		return
	}

	db, err := sql.Open("sqlite", *dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	migrator := storage.NewMigrator(db, log.Named("migrate"))

	switch *command {
	case "up":
		err = migrator.MigrateUp()
	case "to":
		if *targetVersion == "" {
			fmt.Fprintf(os.Stderr, "Error: -target flag is required for to command\n")
			os.Exit(1)
		}
		target, convErr := strconv.Atoi(*targetVersion)
		if convErr != nil {
			log.Fatalf("Invalid target version: %v", convErr)
		}
		err = migrator.MigrateTo(target)
	case "version":
		version, err := migrator.GetCurrentVersion()
		if err != nil {
			log.Fatalf("Failed to get current version: %v", err)
		}
		fmt.Printf("Current version: %d\n", version)
		return
	case "status":
		err = showStatus(migrator)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		showHelp()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("Migration command failed: %v", err)
	}
	if *command == "up" || *command == "to" {
		version, _ := migrator.GetCurrentVersion()
		log.Infof("Database is at version %d", version)
	}
}

// purgeCache empties the solar cache table. The store migrates up on open.
func purgeCache(dbPath string) error {
	store, err := storage.Open(dbPath, log.Named("storage"))
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.SolarCache(nil).Purge()
	if err != nil {
		return err
	}
	log.Infof("Purged %d cached solar series", n)
	return nil
}

func showStatus(migrator *migrate.Migrator) error {
	currentVersion, err := migrator.GetCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	pending, err := migrator.GetPendingMigrations()
	if err != nil {
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}

	fmt.Printf("Current version: %d\n", currentVersion)
	fmt.Printf("Pending migrations: %d\n", len(pending))
	for _, migration := range pending {
		fmt.Printf("  %d: %s\n", migration.Version, migration.Name)
	}
	return nil
}

func showHelp() {
	fmt.Println("shadowflicker run store migrations")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate -db runs.db [-command up|to|version|status|purge-cache] [-target N]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up                 Apply all pending migrations")
	fmt.Println("  to                 Migrate to a specific version (up or down)")
	fmt.Println("  version            Show the current schema version")
	fmt.Println("  status             Show the current version and pending migrations")
	fmt.Println("  purge-cache        Delete every cached solar series")
	fmt.Println()
	fmt.Println("The shadowflicker command migrates up on its own; use this tool to")
	fmt.Println("inspect a database or roll it back, e.g. migrate -db runs.db -command to -target 1")
}
