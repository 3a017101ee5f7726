package commands

import (
	"fmt"
	"strconv"

	"github.com/DrSkyle/depotmap/pkg/attribution"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <depot>...",
	Short: "Show the catalog owner of individual depots",
	Long: `Resolves each depot against the application catalog with nearest-owner matching.
Only the catalog is loaded; depots that would be clustered in a full run are
reported as unresolved.

Example:
  depotmap resolve 731 228988`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		depots := make([]int, len(args))
		for i, arg := range args {
			id, err := strconv.Atoi(arg)
			if err != nil || id < 0 {
				return fmt.Errorf("invalid depot id %q", arg)
			}
			depots[i] = id
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

		catalog, err := eng.LoadCatalog(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, depot := range depots {
			owner, ok := attribution.Resolve(depot, catalog)
			if !ok {
				fmt.Fprintf(out, "%d\tunresolved\n", depot)
				continue
			}
			name, _ := catalog.Name(owner)
			fmt.Fprintf(out, "%d\t%d\t%s\n", depot, owner, name)
		}
		return nil
	},
}
