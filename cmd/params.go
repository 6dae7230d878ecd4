package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/slatecarbon/slatecarbon/pkg/model"
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Manage allocation parameter sets",
}

var paramsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List allocation parameter sets",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		params, err := db.ListParams(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPRE %\tPOST %\tDEFAULT\t")
		for _, p := range params {
			def := ""
			if p.IsDefault {
				def = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%.1f\t%.1f\t%s\t\n",
				p.ID, p.Name, p.Stages.PreProduction, p.Stages.PostProduction, def)
		}
		w.Flush()
		return nil
	},
}

var paramsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an allocation parameter set",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		pre, _ := cmd.Flags().GetFloat64("pre")
		post, _ := cmd.Flags().GetFloat64("post")
		isDefault, _ := cmd.Flags().GetBool("default")

		db, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		now := nowUTC()
		p := model.AllocationParams{
			ID:   uuid.NewString(),
			Name: name,
			Stages: model.StageSplit{
				PreProduction:  pre,
				PostProduction: post,
			},
			ScopeWeights: model.ScopeWeights{Scope1: 1, Scope2: 1, Scope3: 1},
			IsDefault:    isDefault,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := db.SaveParams(cmd.Context(), p); err != nil {
			return err
		}
		fmt.Printf("Added params '%s' (%s)\n", p.Name, p.ID)
		return nil
	},
}

var paramsDefaultCmd = &cobra.Command{
	Use:   "default <id>",
	Short: "Promote a parameter set to system-wide default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.SetDefaultParams(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Default allocation params set to %s\n", args[0])
		return nil
	},
}

var paramsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a parameter set (the default cannot be deleted)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteParams(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted params %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(paramsCmd)
	paramsCmd.AddCommand(paramsListCmd)
	paramsCmd.AddCommand(paramsAddCmd)
	paramsCmd.AddCommand(paramsDefaultCmd)
	paramsCmd.AddCommand(paramsRmCmd)

	paramsAddCmd.Flags().String("name", "", "Name for the set (required)")
	paramsAddCmd.Flags().Float64("pre", 50, "Pre-production percentage")
	paramsAddCmd.Flags().Float64("post", 50, "Post-production percentage (pre+post must be 100)")
	paramsAddCmd.Flags().Bool("default", false, "Make this the system-wide default")
}
