package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/chatfabric/relay-node/config"
	"github.com/chatfabric/relay-node/internal/repository/migration"
	"github.com/chatfabric/relay-node/internal/tracing"
)

const (
	ServiceName      = "relay-node"
	ServiceNamespace = "chatfabric"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Real-time chat fabric relay node",
		Commands: []*cli.Command{
			serverCmd(),
			migrateCmd(),
			rollbackCmd(),
		},
	}

	return app.Run(os.Args)
}

func configFileFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "config_file",
		Usage: "Path to the configuration file",
	}
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the relay node",
		Flags:   []cli.Flag{configFileFlag()},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config_file"), nil)
			if err != nil {
				return err
			}

			logger := config.ProvideLogger()
			info, err := config.LoadBuildInfo("application.yml", version, commit, commitDate, branch)
			if err != nil {
				return err
			}
			logger.Info("STARTING", "service", ServiceName, "version", info.Version, "commit", info.Commit, "branch", info.Branch)

			tracerProvider, err := tracing.NewProvider(c.Context, ServiceName)
			if err != nil {
				return err
			}

			app := NewApp(cfg, logger)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			shutdownCtx := context.Background()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("TRACER_SHUTDOWN_FAILED", "error", err)
			}
			return app.Stop(shutdownCtx)
		},
	}
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations",
		Flags: []cli.Flag{configFileFlag()},
		Action: func(c *cli.Context) error {
			db, err := openMigrationDB(c)
			if err != nil {
				return err
			}
			return migration.Migrate(db)
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:  "rollback",
		Usage: "Revert the most recently applied database migration",
		Flags: []cli.Flag{configFileFlag()},
		Action: func(c *cli.Context) error {
			db, err := openMigrationDB(c)
			if err != nil {
				return err
			}
			return migration.Rollback(db)
		},
	}
}

// openMigrationDB opens a direct GORM connection for the migrate/rollback
// subcommands, bypassing the fx graph entirely: these commands run and
// exit, they don't need the rest of the node wired up.
func openMigrationDB(c *cli.Context) (*gorm.DB, error) {
	cfg, err := config.Load(c.String("config_file"), nil)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.URI), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("cmd: opening database: %w", err)
	}
	return db, nil
}
