// Command migrate copies the products of a JSON file store into a SQL store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"price-tracker/internal/store"
)

const version = "1.0.0"

func main() {
	dataDir := flag.String("dir", "./data", "Data directory containing products.json")
	driver := flag.String("driver", "sqlite", "Target store: sqlite or postgres")
	dsn := flag.String("dsn", "", "Target DSN (defaults to the SQLite file inside -dir)")
	dryRun := flag.Bool("dry-run", false, "Show what would be done without making changes")
	versionFlag := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("migrate version %s\n", version)
		return
	}

	fmt.Printf("=== PriceWatch data migration v%s ===\n\n", version)

	if err := run(context.Background(), *dataDir, *driver, *dsn, *dryRun); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dataDir, driver, dsn string, dryRun bool) error {
	// Verify data directory exists
	if _, err := os.Stat(filepath.Join(dataDir, "products.json")); err != nil {
		return fmt.Errorf("no products.json in %s: %w", dataDir, err)
	}

	if dryRun {
		fmt.Println("=== dry run (no data is changed) ===")
	}

	// Step 1: Backup the JSON file
	backupDir := dataDir + "_backup_" + time.Now().Format("20060102_150405")
	if err := backupJSON(dataDir, backupDir); err != nil {
		fmt.Printf("warning: backup failed: %v\n", err)
	} else {
		fmt.Printf("backup written: %s\n", backupDir)
	}

	// Step 2: Load products
	source, err := store.NewFileStore(dataDir)
	if err != nil {
		return err
	}

	products, err := source.FetchAll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("found %d products\n", len(products))

	if dryRun {
		for _, p := range products {
			fmt.Printf("  %s (%d prices, %d subscribers)\n", p.URL, len(p.PriceHistory), len(p.Users))
		}
		return nil
	}

	// Step 3: Open target
	target, err := openTarget(ctx, dataDir, driver, dsn)
	if err != nil {
		return err
	}
	defer target.Close()

	// Step 4: Copy products; already tracked urls are kept as they are
	migrated, skipped := 0, 0
	for _, p := range products {
		stored, created, err := target.TrackProduct(ctx, p)
		switch {
		case err != nil:
			fmt.Printf("warning: %s not migrated: %v\n", p.URL, err)
		case created:
			migrated++
			if dropped := len(p.Users) - len(stored.Users); dropped > 0 {
				fmt.Printf("warning: %s: %d invalid or repeated subscribers dropped\n", p.URL, dropped)
			}
		default:
			skipped++
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Printf("migrated: %d\nalready present: %d\nfailed: %d\n", migrated, skipped, len(products)-migrated-skipped)
	fmt.Printf("backup: %s\n", backupDir)

	return nil
}

func openTarget(ctx context.Context, dataDir, driver, dsn string) (*store.SQLStore, error) {
	opts := store.Options{Driver: store.DriverSQLite, DSN: dsn, MaxOpenConns: 1}

	switch driver {
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("-dsn is required for postgres")
		}
		opts.Driver = store.DriverPostgres
		opts.MaxOpenConns = 5
	case "sqlite":
		if dsn == "" {
			var err error
			if opts.DSN, err = store.SQLiteDSN(dataDir); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}

	return store.Open(ctx, opts)
}

// backupJSON copies products.json into backupDir.
func backupJSON(dataDir, backupDir string) error {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(dataDir, "products.json"))
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(backupDir, "products.json"), data, 0o644)
}
