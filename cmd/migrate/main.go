package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/pflag"

	"github.com/Siwa-Docsecure/base/internal/migrate"
	"github.com/Siwa-Docsecure/base/internal/obs"
)

const usage = "usage: migrate [flags] up|down|seed|status"

func main() {
	if err := run(os.Args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		obs.Logger().Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	dsn := flagSet.String("dsn", os.Getenv("PSMS_PG_DSN"), "PostgreSQL DSN (default $PSMS_PG_DSN)")
	migrationsDir := flagSet.String("migrations", "", "directory of *.up.sql/*.down.sql files (default: embedded)")
	seedsDir := flagSet.String("seeds", "", "directory of seed *.sql files (default: embedded)")
	timeout := flagSet.Duration("timeout", 30*time.Second, "overall deadline")
	flagSet.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args[1:]); err != nil {
		return err
	}
	if *dsn == "" {
		return errors.New("missing DSN: provide via --dsn or PSMS_PG_DSN")
	}
	if flagSet.NArg() != 1 {
		return errors.New(usage)
	}
	cmd := flagSet.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	logger := obs.Logger()
	mgr := migrate.NewManager(db,
		dirOr(*migrationsDir, migrate.Migrations()),
		dirOr(*seedsDir, migrate.Seeds()),
		migrate.WithLogger(logger),
	)

	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Println(item)
		}
	default:
		return fmt.Errorf("unknown command %q; %s", cmd, usage)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cmd, err)
	}
	logger.Info("migrate done", "command", cmd)
	return nil
}

func dirOr(dir string, embedded fs.FS) fs.FS {
	if dir == "" {
		return embedded
	}
	return os.DirFS(dir)
}
