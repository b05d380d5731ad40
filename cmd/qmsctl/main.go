// Command qmsctl administers departments, users and groups, applies the
// database schema and prints the security risk panel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/app"
	"github.com/dharsanguruparan/QMSVault/internal/config"
	"github.com/dharsanguruparan/QMSVault/internal/logging"
)

// cli carries what every subcommand needs. open is swapped in tests.
type cli struct {
	cfg    *config.Config
	logger *zap.Logger
	open   func(ctx context.Context) (*app.Backend, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "qmsctl: load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qmsctl: init logger: %v\n", err)
		os.Exit(1)
	}
	c := &cli{
		cfg:    cfg,
		logger: logger,
		open: func(ctx context.Context) (*app.Backend, error) {
			return app.Open(ctx, cfg, logger)
		},
	}
	if err := c.rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "qmsctl: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qmsctl",
		Short: "QMSVault administration CLI",
		Long: `qmsctl manages the directory behind QMSVault: departments, users and the groups that
grant their roles. It also applies the database schema and prints the security risk panel.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		c.migrateCmd(),
		c.departmentCmd(),
		c.userCmd(),
		c.riskCmd(),
	)
	return cmd
}

// withStore opens the backend for the duration of fn.
func (c *cli) withStore(ctx context.Context, fn func(store app.Store) error) error {
	backend, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(backend.Store)
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Store != config.StorePostgres {
				return fmt.Errorf("migrate needs store=%s, got %q", config.StorePostgres, c.cfg.Store)
			}
			// Opening the postgres backend applies the schema.
			return c.withStore(cmd.Context(), func(app.Store) error {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			})
		},
	}
}
