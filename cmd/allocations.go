package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/slatecarbon/slatecarbon/pkg/allocation"
)

// allocationsCmd recomputes and prints the overhead shares. Allocations are
// derived data: they are never stored, so this is always current.
var allocationsCmd = &cobra.Command{
	Use:   "allocations",
	Short: "Show how shared overhead splits across projects",
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
		operational, err := db.ListOperational(ctx)
		if err != nil {
			return err
		}
		params, err := db.DefaultParams(ctx)
		if err != nil {
			return err
		}

		allocated := allocation.NewResolver().AllocateAll(operational, projects, params)
		if len(allocated) == 0 {
			fmt.Println("No allocated overhead. Shared records without an allocation rule stay unallocated.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "SOURCE\tPROJECT\tSHARE kg\tPRE kg\tPOST kg\t")
		for _, a := range allocated {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
				a.SourceRecordID, a.ProjectID, a.Amount, a.Stages.PreProduction, a.Stages.PostProduction)
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(allocationsCmd)
}
