package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/persist/internal/cli/config"
	"github.com/conduit-lang/persist/internal/orm/crud"
)

// NewDBCommand creates the db command
func NewDBCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database connectivity commands",
		Long: `Open the configured database through the same pool setup the persisters
use.

The connection is read from persist.yml, PERSIST_DATABASE_URL or DATABASE_URL.`,
		Example: `  # Check the configured database answers
  persist db ping

  # Count the rows of a declared table
  persist db count -f entities.yml --table carts`,
	}

	cmd.AddCommand(newDBPingCommand(opts))
	cmd.AddCommand(newDBCountCommand(opts))

	return cmd
}

// open connects with the configured pool settings
func open(ctx context.Context, cfg *config.Config, crudCfg crud.Config) (*crud.SQLPersister, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, fmt.Errorf("%w: set database.url in persist.yml, PERSIST_DATABASE_URL or DATABASE_URL", err)
	}
	return crud.Open(ctx, crudCfg)
}

func newDBPingCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Open the configured database and ping it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			p, err := open(cmd.Context(), cfg, cfg.Crud(logger, nil))
			if err != nil {
				return err
			}
			if err := p.Destroy(); err != nil {
				return err
			}

			successColor := color.New(color.FgGreen, color.Bold)
			if opts.noColor {
				successColor.DisableColor()
			}
			successColor.Fprintf(cmd.OutOrStdout(), "✓ %s database reachable\n", p.Dialect().Name())
			return nil
		},
	}
}

func newDBCountCommand(opts *globalOptions) *cobra.Command {
	var (
		file  string
		table string
	)

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count the rows of a declared table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			reg, _, err := loadRegistry(resolveFile(file, cfg.Schema.File), logger)
			if err != nil {
				return err
			}
			md, err := lookupTable(reg, table)
			if err != nil {
				return err
			}

			p, err := open(cmd.Context(), cfg, cfg.Crud(logger, reg))
			if err != nil {
				return err
			}
			defer p.Destroy() //nolint:errcheck

			n, err := p.Count(cmd.Context(), md)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", md.TableName, n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Entity declaration file (default from config)")
	cmd.Flags().StringVarP(&table, "table", "t", "", "Table to count")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}
