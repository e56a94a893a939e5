// Package main is the entrypoint for bridge-host, the development host that
// serves a simulated native runtime over COMMS.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/morezero/sdk-bridge/internal/config"
	"github.com/morezero/sdk-bridge/internal/server"
	"github.com/morezero/sdk-bridge/pkg/bridge"
	"github.com/morezero/sdk-bridge/pkg/commsutil"
	"github.com/morezero/sdk-bridge/pkg/db"
	"github.com/morezero/sdk-bridge/pkg/native/commsbridge"
)

const usage = `Usage: bridge-host [command]
       bridge-host serve                        Start the host (COMMS, simulated runtime, HTTP).
       bridge-host migrate                      Run traffic journal migrations.
       bridge-host prune [--older-than 168h]    Delete journal rows older than the given age.
       bridge-host clear                        Truncate the traffic journal; schema is preserved.
       bridge-host version-check [constraint]   Ask a running host for its runtime version.

Commands:
  serve           (default) Start the bridge host.
  migrate         Create the journal database if missing and run migrations.
  prune           Remove old journal rows (default age 168h).
  clear           Truncate the journal.
  version-check   Query the runtime over COMMS; with a constraint, exit 1 when incompatible.

Environment: COMMS_URL, BRIDGE_PLATFORM, DATABASE_URL (journal commands), MIGRATION_PATH,
NATIVE_VERSION_CONSTRAINT, SIMULATION_PROFILE, HTTP_PORT. See README.
`

// defaultPruneAge is the prune cutoff when --older-than is not given.
const defaultPruneAge = 7 * 24 * time.Hour

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if err := runMigrate(); err != nil {
			log.Fatalf("bridge-host migrate: %v", err)
		}
		return
	case "prune":
		age, err := parsePruneAge(args[1:])
		if err != nil {
			log.Fatalf("bridge-host prune: %v", err)
		}
		if err := runPrune(age); err != nil {
			log.Fatalf("bridge-host prune: %v", err)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("bridge-host clear: %v", err)
		}
		return
	case "version-check":
		constraint := ""
		if len(args) > 1 {
			constraint = args[1]
		}
		if err := runVersionCheck(constraint); err != nil {
			if errors.Is(err, bridge.ErrIncompatibleRuntime) {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			log.Fatalf("bridge-host version-check: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("bridge-host: %v", err)
	}
}

// parsePruneAge reads "--older-than <duration>" or "--older-than=<duration>".
func parsePruneAge(args []string) (time.Duration, error) {
	if len(args) == 0 {
		return defaultPruneAge, nil
	}
	raw := ""
	switch {
	case args[0] == "--older-than":
		if len(args) < 2 {
			return 0, fmt.Errorf("--older-than requires a duration")
		}
		raw = args[1]
	case strings.HasPrefix(args[0], "--older-than="):
		raw = strings.TrimPrefix(args[0], "--older-than=")
	default:
		return 0, fmt.Errorf("unknown argument %q", args[0])
	}
	age, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if age <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", age)
	}
	return age, nil
}

func runMigrate() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	if err := db.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("ensure database: %w", err)
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	files, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runPrune(age time.Duration) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	n, err := db.PruneJournal(ctx, pool, time.Now().Add(-age))
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d journal rows older than %s.\n", n, age)
	return nil
}

func runClear() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.ClearJournal(ctx, pool)
}

func runVersionCheck(constraint string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if constraint == "" {
		constraint = cfg.NativeVersionConstraint
	}

	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-version-check")
	if err != nil {
		return fmt.Errorf("connect COMMS: %w", err)
	}
	defer nc.Close()

	target := fmt.Sprintf("%s-version-check-%d", cfg.COMMSName, os.Getpid())
	nb, err := commsbridge.New(nc, commsbridge.Options{
		Platform:       cfg.Platform,
		Target:         target,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}
	b := bridge.New(nb, &bridge.Options{Target: target, Platform: cfg.Platform})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	defer b.Close(ctx)

	if constraint == "" {
		version, err := b.RuntimeVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Native runtime version %s\n", version)
		return nil
	}

	compat, err := b.CheckCompatibility(ctx, constraint)
	if compat != nil {
		fmt.Printf("Native runtime version %s, constraint %s, compatible=%v\n", compat.Version, compat.Constraint, compat.Compatible)
	}
	return err
}
