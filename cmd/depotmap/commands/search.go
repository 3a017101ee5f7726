package commands

import (
	"fmt"
	"strings"

	"github.com/DrSkyle/depotmap/pkg/config"
	"github.com/DrSkyle/depotmap/pkg/search"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find applications by name or id after attribution",
	Long: `Runs attribution, then lists owners whose name or id contains the query
(case-insensitive, at least two characters). With --generate the scripts of
every listed owner are written to the output location.

Example:
  depotmap search portal
  depotmap search 730 --generate -o ./picked`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		if len([]rune(strings.TrimSpace(query))) < search.MinQueryLength {
			return fmt.Errorf("query must be at least %d characters", search.MinQueryLength)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := interruptible(cmd)
		defer stop()

		eng, err := newEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer eng.Close(cmd.Context())

		snap, err := eng.Map(ctx)
		if err != nil {
			return err
		}

		ix, err := search.New(snap.Result.Groups, snap.Catalog,
			search.WithLimit(cfg.Search.Limit),
			search.WithCacheSize(cfg.Search.CacheSize),
		)
		if err != nil {
			return err
		}

		results := ix.Search(query)
		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No matches.")
			return nil
		}

		owners := make([]int, len(results))
		for i, r := range results {
			owners[i] = r.Owner
			fmt.Fprintf(out, "%d | %s\n", r.Owner, r.Name)
		}

		if generate, _ := cmd.Flags().GetBool("generate"); generate {
			summary, err := eng.Generate(ctx, snap, owners)
			if err != nil {
				return fmt.Errorf("generation failed: %w", err)
			}
			fmt.Fprintf(out, "Generated %d scripts in %s\n", summary.Generated, cfg.Output)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Bool("generate", false, "Write the scripts of every match")
	searchCmd.Flags().Int("limit", config.DefaultSearchLimit, "Maximum number of matches")

	bindFlags(searchCmd.Flags(), map[string]string{
		"search.limit": "limit",
	})
}
