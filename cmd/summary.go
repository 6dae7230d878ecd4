package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/slatecarbon/slatecarbon/pkg/aggregate"
	"github.com/slatecarbon/slatecarbon/pkg/allocation"
)

// summaryCmd prints per-project emission totals: direct entries plus the
// project's computed share of allocated overhead.
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Per-project emission totals (direct + allocated overhead)",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		ctx := cmd.Context()

		projects, err := db.ListProjects(ctx)
		if err != nil {
			return err
		}
		records, err := db.ListRecords(ctx)
		if err != nil {
			return err
		}
		operational, err := db.ListOperational(ctx)
		if err != nil {
			return err
		}
		params, err := db.DefaultParams(ctx)
		if err != nil {
			return err
		}

		allocated := allocation.NewResolver().AllocateAll(operational, projects, params)
		summaries := aggregate.SummarizeAll(projects, records, allocated)

		if len(summaries) == 0 {
			fmt.Println("No projects yet. Add one with 'slatecarbon projects add'.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "PROJECT\tDIRECT kg\tALLOCATED kg\tTOTAL kg\tRECORDS\t")
		for i, s := range summaries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t\n",
				projects[i].Name, s.Direct, s.Allocated, s.Total, s.DirectCount+s.AllocatedCount)
		}
		w.Flush()

		fmt.Printf("\nUnallocated operational emissions: %s kg CO2e\n",
			aggregate.UnallocatedTotal(operational, allocated))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}
