package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/persist/internal/cli/ui"
	"github.com/conduit-lang/persist/internal/orm/codegen"
	"github.com/conduit-lang/persist/internal/orm/crud"
	"github.com/conduit-lang/persist/internal/orm/entity"
	"github.com/conduit-lang/persist/internal/orm/query"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// NewSchemaCommand creates the schema command
func NewSchemaCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect entity declarations",
		Long: `Load an entity declaration file, resolve its relations and render the
statements the persisters issue for it.`,
		Example: `  # Check that every relation resolves
  persist schema check -f entities.yml

  # Show the SQL issued for the carts table on MySQL
  persist schema sql -f entities.yml --table carts --dialect mysql

  # Render CREATE TABLE statements
  persist schema ddl -f entities.yml --dialect postgres`,
	}

	cmd.AddCommand(newSchemaCheckCommand(opts))
	cmd.AddCommand(newSchemaSQLCommand(opts))
	cmd.AddCommand(newSchemaDDLCommand(opts))

	return cmd
}

// loadRegistry parses the declaration file and registers every entity
func loadRegistry(file string, logger *zap.Logger) (*schema.Registry, *schema.Declarations, error) {
	decl, err := schema.LoadDeclarationFile(file)
	if err != nil {
		return nil, nil, err
	}
	if len(decl.Entities) == 0 {
		return nil, nil, fmt.Errorf("%s declares no entities", file)
	}

	reg := schema.NewRegistry(schema.WithRegistryLogger(logger))
	if _, err := decl.Register(reg, entity.RecordFactory); err != nil {
		return nil, nil, err
	}
	return reg, decl, nil
}

// resolveFile prefers the flag over the configured declaration file
func resolveFile(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}

func newSchemaCheckCommand(opts *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Resolve relations and report pending ones",
		Long: `Register every declared entity and print the relations that were linked.
Exits with an error when a relation cannot be resolved.`,
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
			return reportRelations(cmd.OutOrStdout(), reg, opts.noColor)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Entity declaration file (default from config)")

	return cmd
}

func reportRelations(w io.Writer, reg *schema.Registry, noColor bool) error {
	successColor := color.New(color.FgGreen, color.Bold)
	warningColor := color.New(color.FgYellow, color.Bold)
	if noColor {
		successColor.DisableColor()
		warningColor.DisableColor()
	}

	links := reg.Links()
	if len(links) > 0 {
		table := ui.NewTable(w, noColor, "TABLE", "PROPERTY", "KIND", "TARGET")
		for _, link := range links {
			table.AddRow(link.Table, link.Property, link.Kind, link.TargetTable)
		}
		table.Render()
		fmt.Fprintln(w)
	}

	pending := reg.Pending()
	if len(pending) == 0 {
		successColor.Fprintf(w, "✓ %d tables, %d relations resolved\n", reg.Count(), len(links))
		return nil
	}

	tables := make([]string, 0, len(pending))
	count := 0
	for table, properties := range pending {
		tables = append(tables, table)
		count += len(properties)
	}
	sort.Strings(tables)

	warningColor.Fprintf(w, "⚠ %d relations pending\n", count)
	for _, table := range tables {
		fmt.Fprintf(w, "  %s: %s\n", table, strings.Join(pending[table], ", "))
	}
	for _, a := range reg.Ambiguities() {
		fmt.Fprintf(w, "  %s.%s is ambiguous between %s; set mapped_table\n", a.Table, a.Property, strings.Join(a.Candidates, ", "))
	}
	return fmt.Errorf("%d relations pending", count)
}

// lookupTable returns the metadata of table or an error suggesting close names
func lookupTable(reg *schema.Registry, table string) (*schema.EntityMetadata, error) {
	md, ok := reg.GetMetadataByTable(table)
	if ok {
		return md, nil
	}
	if suggestions := ui.Suggest(table, reg.Tables(), 3); len(suggestions) > 0 {
		return nil, fmt.Errorf("table %s is not declared (did you mean %s?)", table, strings.Join(suggestions, ", "))
	}
	return nil, fmt.Errorf("table %s is not declared", table)
}

// resolveDialect prefers the flag over the configured dialect
func resolveDialect(flag string, configured query.Dialect) (query.Dialect, error) {
	if flag == "" {
		return configured, nil
	}
	return query.DialectByName(flag)
}

func newSchemaSQLCommand(opts *globalOptions) *cobra.Command {
	var (
		file    string
		table   string
		dialect string
	)

	cmd := &cobra.Command{
		Use:   "sql",
		Short: "Print the statements issued for a table",
		Long: `Render the find, count, exists, insert, update and delete statements the
persister issues for a declared table. Values are shown as "?" placeholders.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			d, err := resolveDialect(dialect, cfg.Dialect())
			if err != nil {
				return err
			}
			reg, _, err := loadRegistry(resolveFile(file, cfg.Schema.File), logger)
			if err != nil {
				return err
			}
			md, err := lookupTable(reg, table)
			if err != nil {
				return err
			}

			p := crud.New(nil, d,
				crud.WithRegistry(reg),
				crud.WithTablePrefix(cfg.Database.TablePrefix),
				crud.WithLogger(logger))
			stmts, err := p.Statements(md)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, stmt := range stmts {
				ui.Header(out, stmt.Op, opts.noColor)
				fmt.Fprintln(out, stmt.SQL)
				fmt.Fprintf(out, "-- %d arguments\n\n", len(stmt.Args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Entity declaration file (default from config)")
	cmd.Flags().StringVarP(&table, "table", "t", "", "Table to render")
	cmd.Flags().StringVarP(&dialect, "dialect", "d", "", "SQL dialect: mysql, postgres or sqlite (default from config)")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func newSchemaDDLCommand(opts *globalOptions) *cobra.Command {
	var (
		file    string
		dialect string
	)

	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print CREATE TABLE statements",
		Long: `Render CREATE TABLE statements for every declared table, parents before
the tables that reference them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			d, err := resolveDialect(dialect, cfg.Dialect())
			if err != nil {
				return err
			}
			reg, _, err := loadRegistry(resolveFile(file, cfg.Schema.File), logger)
			if err != nil {
				return err
			}

			ddl, err := codegen.NewDDLGenerator(d).SetTablePrefix(cfg.Database.TablePrefix).GenerateSchema(reg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ddl)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Entity declaration file (default from config)")
	cmd.Flags().StringVarP(&dialect, "dialect", "d", "", "SQL dialect: mysql, postgres or sqlite (default from config)")

	return cmd
}
