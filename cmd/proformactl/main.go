// Command proformactl runs operational tasks: schema migrations, manual job
// triggers and catalog cache invalidation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/laha-editions/proforma/cmd/proformactl/cli"
	"github.com/laha-editions/proforma/internal/app"
	"github.com/laha-editions/proforma/internal/catalog"
	"github.com/laha-editions/proforma/internal/platform/cache"
	"github.com/laha-editions/proforma/internal/platform/db"
	"github.com/laha-editions/proforma/migrations"
)

const usage = `usage: proformactl <command> [args]

commands:
  migrate up              apply pending migrations
  migrate down [-steps N] roll back the last N migrations (default 1)
  jobs trigger <name>     enqueue a job (expire)
  jobs stats              print default queue statistics
  jobs archived [-n N]    list archived tasks
  catalog bump            invalidate cached catalog works
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	var runErr error
	switch args[0] {
	case "migrate":
		runErr = runMigrate(ctx, cfg, logger, args[1:], stdout)
	case "jobs":
		runErr = runJobs(ctx, cfg, args[1:], stdout)
	case "catalog":
		runErr = runCatalog(ctx, cfg, args[1:], stdout)
	default:
		fmt.Fprint(stderr, usage)
		return 2
	}
	if runErr != nil {
		logger.Error("proformactl", slog.String("command", args[0]), slog.Any("error", runErr))
		fmt.Fprintln(stderr, runErr)
		return 1
	}
	return 0
}

func runMigrate(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout io.Writer) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions("proformactl"))
	if err != nil {
		return err
	}
	defer pool.Close()
	migrator, err := db.NewMigrator(pool, migrations.FS, logger)
	if err != nil {
		return err
	}
	defer migrator.Close()

	switch args[0] {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			return err
		}
	case "down":
		fs := flag.NewFlagSet("migrate down", flag.ContinueOnError)
		steps := fs.Int("steps", 1, "number of migrations to roll back")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if err := migrator.Down(ctx, *steps); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown migrate command %q", args[0])
	}

	version, dirty, ok, err := migrator.Version()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(stdout, "schema version: none")
		return nil
	}
	fmt.Fprintf(stdout, "schema version: %d (dirty=%t)\n", version, dirty)
	return nil
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout io.Writer) error {
	jobsCLI := cli.NewJobsCLI(cfg.RedisOptions().Asynq())
	defer jobsCLI.Close()

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("jobs trigger: job name required")
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "enqueued %s (%s)\n", info.Type, info.ID)
		return nil
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		return enc.Encode(stats)
	case "archived":
		fs := flag.NewFlagSet("jobs archived", flag.ContinueOnError)
		size := fs.Int("n", 10, "number of tasks to list")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		tasks, err := jobsCLI.ListArchived(ctx, *size)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", task.ID, task.Type, task.LastErr)
		}
		return nil
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
}

func runCatalog(ctx context.Context, cfg *app.Config, args []string, stdout io.Writer) error {
	if args[0] != "bump" {
		return fmt.Errorf("unknown catalog command %q", args[0])
	}
	client, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		return err
	}
	defer client.Close()
	c := catalog.NewCache(client, cfg.CatalogCacheTTL)
	if err := c.Bump(ctx); err != nil {
		return err
	}
	version, err := c.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "catalog cache version %d\n", version)
	return nil
}
