package commands

import (
	"fmt"

	"github.com/DrSkyle/depotmap/pkg/config"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Attribute every depot and write one script per application",
	Long: `Loads the depot key table and the application catalog, attributes every depot with a
key to an application, and writes <appid>.lua scripts plus depot_mapping.json,
statistics.json and README.txt to the output location.

Example:
  depotmap generate --depot-keys depotkeys.json --catalog steamcmd_appid.json
  depotmap generate --max-gap 20 --rules rules.yaml -o minio://artifacts/lua`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if noMapping, _ := cmd.Flags().GetBool("no-mapping"); noMapping {
			cfg.SaveMapping = false
		}

		ctx, stop := interruptible(cmd)
		defer stop()

		eng, err := newEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer eng.Close(cmd.Context())

		report, err := eng.Run(ctx)
		if err != nil {
			return fmt.Errorf("generation failed: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderSummary(report, cfg.Output))
		return nil
	},
}

func init() {
	f := generateCmd.Flags()
	f.Int("max-gap", config.DefaultMaxGap, "Largest id gap inside one synthetic group")
	f.Int("check-interval", config.DefaultCheckInterval, "Depots processed between cancellation checks")
	f.Bool("skip-unknown", false, "Do not write scripts for owners missing from the catalog")
	f.Bool("no-mapping", false, "Do not write depot_mapping.json, statistics.json and README.txt")
	f.String("rules", "", "YAML file of CEL owner rules")
	f.Int("top", config.DefaultTopN, "Owners listed in the README ranking")
	f.Int("concurrency", config.DefaultConcurrency, "Scripts uploaded in parallel")

	bindFlags(f, map[string]string{
		"max_gap":        "max-gap",
		"check_interval": "check-interval",
		"skip_unknown":   "skip-unknown",
		"rules_file":     "rules",
		"top_n":          "top",
		"concurrency":    "concurrency",
	})
}
