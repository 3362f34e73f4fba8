package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dsandi/seed-it/internal/config"
	"github.com/dsandi/seed-it/internal/export"
	"github.com/dsandi/seed-it/internal/extract"
	"github.com/dsandi/seed-it/internal/report"
)

var (
	genCaptures string
	genOutput   string
	genFormat   string
	genDepth    int
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a seed dataset from captured queries",
	Long:  `Parse captured query traffic, reconstruct the rows it touched and write a dependency-complete seed dataset in insertion order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		dbURL, err := cfg.GetDatabaseURL()
		if err != nil {
			return err
		}

		if genCaptures != "" {
			cfg.CapturesPath = genCaptures
		}
		if genOutput != "" {
			cfg.OutputPath = genOutput
		}
		if genFormat != "" {
			cfg.OutputFormat = genFormat
		}
		if genDepth > 0 {
			cfg.FetchDepth = genDepth
		}

		rep := report.New(verbose)
		result, err := extract.Generate(context.Background(), extract.Options{
			CapturesPath:  cfg.CapturesPath,
			OverridesPath: cfg.OverridesPath,
			TableMapPath:  cfg.TableMapPath,
			DatabaseURL:   dbURL,
			Workers:       cfg.Workers,
			FetchDepth:    cfg.FetchDepth,
		}, rep)
		if err != nil {
			return err
		}

		path, err := export.ForFormat(cfg.OutputFormat, cfg.OutputPath).Emit(result.Order, result.Rows)
		if err != nil {
			return fmt.Errorf("failed to write dataset: %w", err)
		}

		total := 0
		for _, list := range result.Rows {
			total += len(list)
		}

		fmt.Println()
		color.Green("✅ Seed dataset written to %s", path)
		fmt.Printf("   %d queries → %d rows across %d tables (%d fetched transitively)\n",
			result.QueryCount, total, len(result.Order), result.FetchedRows)

		if len(result.Cycles) > 0 {
			color.Yellow("⚠️  %d circular foreign-key dependencies; affected tables are appended last", len(result.Cycles))
		}
		if len(result.SelfReferencing) > 0 {
			color.Yellow("⚠️  self-referencing tables reordered internally: %v", result.SelfReferencing)
		}
		if n := len(result.Warnings); n > 0 && !verbose {
			fmt.Printf("   %d warnings (re-run with --verbose for details)\n", n)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&genCaptures, "captures", "", "Capture file or directory (overrides config)")
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "Output directory (overrides config)")
	generateCmd.Flags().StringVar(&genFormat, "format", "", "Output format: json or yaml")
	generateCmd.Flags().IntVar(&genDepth, "depth", 0, "Max transitive fetch depth")
}
