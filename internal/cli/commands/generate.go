package commands

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/persist/internal/orm/codegen"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// NewGenerateCommand creates the generate command
func NewGenerateCommand(opts *globalOptions) *cobra.Command {
	var (
		file   string
		output string
		pkg    string
		module string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate typed repositories",
		Long: `Generate one Go file per declared entity containing its metadata
constructor, an entity type and a typed repository with FindBy, FindAllBy,
CountBy, ExistsBy and DeleteAllBy methods for every field.`,
		Example: `  # Generate into ./models using persist.yml settings
  persist generate

  # Explicit input, output directory and package
  persist generate -f entities.yml -o internal/models --package models`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			path := resolveFile(file, cfg.Schema.File)
			decl, err := schema.LoadDeclarationFile(path)
			if err != nil {
				return err
			}
			// registering first reports invalid declarations before any file is written
			if _, _, err := loadRegistry(path, logger); err != nil {
				return err
			}

			if output == "" {
				output = cfg.Codegen.Output
			}
			if pkg == "" {
				pkg = cfg.Codegen.Package
			}

			gen := codegen.NewRepositoryGenerator(pkg)
			if module != "" {
				gen.ModulePath = module
			}
			files, err := gen.Generate(decl)
			if err != nil {
				return err
			}
			if err := codegen.WriteFiles(output, files); err != nil {
				return err
			}

			successColor := color.New(color.FgGreen, color.Bold)
			if opts.noColor {
				successColor.DisableColor()
			}
			out := cmd.OutOrStdout()
			for _, f := range files {
				successColor.Fprint(out, "✓ ")
				fmt.Fprintln(out, filepath.Join(output, f.Name))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Entity declaration file (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory (default from config)")
	cmd.Flags().StringVar(&pkg, "package", "", "Package name of the generated files (default from config)")
	cmd.Flags().StringVar(&module, "module", "", "Module path that contains the persist packages")

	return cmd
}
