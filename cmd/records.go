package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/slatecarbon/slatecarbon/pkg/model"
	"github.com/slatecarbon/slatecarbon/pkg/storage"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage emission records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List direct and shared emission records",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		ctx := cmd.Context()

		records, err := db.ListRecords(ctx)
		if err != nil {
			return err
		}
		operational, err := db.ListOperational(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tPROJECT\tSTAGE\tCATEGORY\tAMOUNT kg\tDATE\t")
		for _, r := range records {
			fmt.Fprintf(w, "%s\tdirect\t%s\t%s\t%s\t%s\t%s\t\n",
				r.ID, r.ProjectID, r.Stage, r.CategoryID, r.Amount, fmtDate(r.OccurredOn))
		}
		for _, o := range operational {
			kind := "shared"
			if o.IsAllocated {
				kind = "shared (" + string(o.Rule.Method) + ")"
			}
			fmt.Fprintf(w, "%s\t%s\t-\t-\t%s\t%s\t%s\t\n",
				o.ID, kind, o.CategoryID, o.Amount, fmtDate(o.OccurredOn))
		}
		w.Flush()
		return nil
	},
}

var recordsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a direct emission record for one project",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		if projectID == "" {
			return fmt.Errorf("--project is required")
		}
		stage, _ := cmd.Flags().GetString("stage")
		switch model.Stage(stage) {
		case model.StagePreProduction, model.StageProduction, model.StagePostProduction:
		default:
			return fmt.Errorf("invalid stage '%s' (pre-production, production, post-production)", stage)
		}
		amount, err := amountFlag(cmd)
		if err != nil {
			return err
		}
		occurred, err := parseDateFlag(cmd, "date")
		if err != nil {
			return err
		}
		if occurred.IsZero() {
			occurred = nowUTC()
		}

		db, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		category, _ := cmd.Flags().GetString("category")
		source, _ := cmd.Flags().GetString("source")
		quantityStr, _ := cmd.Flags().GetString("quantity")
		quantity, err := decimal.NewFromString(quantityStr)
		if err != nil {
			return fmt.Errorf("invalid quantity '%s': %w", quantityStr, err)
		}
		unit, _ := cmd.Flags().GetString("unit")

		now := nowUTC()
		r := model.EmissionRecord{
			ID:         uuid.NewString(),
			ProjectID:  projectID,
			Stage:      model.Stage(stage),
			CategoryID: category,
			SourceID:   source,
			Amount:     amount,
			Quantity:   quantity,
			Unit:       unit,
			OccurredOn: occurred,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := db.SaveRecord(cmd.Context(), r); err != nil {
			return err
		}
		fmt.Printf("Added record %s: %s kg CO2e to project %s\n", r.ID, r.Amount, r.ProjectID)
		return nil
	},
}

var recordsAddSharedCmd = &cobra.Command{
	Use:   "add-shared",
	Short: "Add a shared operational record (office power, shared travel)",
	Long: `Adds an operational record not tied to a single project. With --method it
is marked for allocation and split across the target projects on every read.
Without --method the amount stays as unallocated overhead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := amountFlag(cmd)
		if err != nil {
			return err
		}
		occurred, err := parseDateFlag(cmd, "date")
		if err != nil {
			return err
		}
		if occurred.IsZero() {
			occurred = nowUTC()
		}

		method, _ := cmd.Flags().GetString("method")
		targets, _ := cmd.Flags().GetStringSlice("targets")
		var rule model.AllocationRule
		isAllocated := false
		if method != "" {
			switch model.AllocationMethod(method) {
			case model.MethodEqual, model.MethodBudget, model.MethodDuration:
			default:
				return fmt.Errorf("invalid method '%s' (equal, budget, duration)", method)
			}
			isAllocated = true
			rule = model.AllocationRule{
				Method:         model.AllocationMethod(method),
				TargetProjects: targets,
			}
		}

		db, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		category, _ := cmd.Flags().GetString("category")
		quantityStr, _ := cmd.Flags().GetString("quantity")
		quantity, err := decimal.NewFromString(quantityStr)
		if err != nil {
			return fmt.Errorf("invalid quantity '%s': %w", quantityStr, err)
		}

		now := nowUTC()
		o := model.OperationalRecord{
			ID:          uuid.NewString(),
			CategoryID:  category,
			Amount:      amount,
			Quantity:    quantity,
			OccurredOn:  occurred,
			IsAllocated: isAllocated,
			Rule:        rule,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := db.SaveOperational(cmd.Context(), o); err != nil {
			return err
		}
		if isAllocated {
			fmt.Printf("Added shared record %s: %s kg CO2e, %s split across %d projects\n",
				o.ID, o.Amount, method, len(targets))
		} else {
			fmt.Printf("Added shared record %s: %s kg CO2e (unallocated overhead)\n", o.ID, o.Amount)
		}
		return nil
	},
}

var recordsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete an emission record locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("expected exactly one record id")
		}
		db, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		ctx := cmd.Context()

		// The id may belong to either record table; try direct first.
		if err := db.Delete(ctx, storage.KindRecord, args[0]); err == nil {
			fmt.Printf("Deleted record %s\n", args[0])
			return nil
		}
		if err := db.Delete(ctx, storage.KindOperational, args[0]); err != nil {
			return fmt.Errorf("no record with id %s", args[0])
		}
		fmt.Printf("Deleted shared record %s\n", args[0])
		return nil
	},
}

func amountFlag(cmd *cobra.Command) (decimal.Decimal, error) {
	s, _ := cmd.Flags().GetString("amount")
	if s == "" {
		return decimal.Zero, fmt.Errorf("--amount is required")
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount '%s': %w", s, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsAddCmd)
	recordsCmd.AddCommand(recordsAddSharedCmd)
	recordsCmd.AddCommand(recordsRmCmd)

	recordsAddCmd.Flags().String("project", "", "Project ID (required)")
	recordsAddCmd.Flags().String("stage", "production", "Stage: pre-production, production, post-production")
	recordsAddCmd.Flags().String("category", "", "Emission category ID")
	recordsAddCmd.Flags().String("source", "", "Emission source ID")
	recordsAddCmd.Flags().String("amount", "", "Amount in kg CO2e (required)")
	recordsAddCmd.Flags().String("quantity", "0", "Activity quantity (litres, kWh, km)")
	recordsAddCmd.Flags().String("unit", "", "Unit of the activity quantity")
	recordsAddCmd.Flags().String("date", "", "Date (YYYY-MM-DD), defaults to today")

	recordsAddSharedCmd.Flags().String("category", "", "Emission category ID")
	recordsAddSharedCmd.Flags().String("amount", "", "Amount in kg CO2e (required)")
	recordsAddSharedCmd.Flags().String("quantity", "0", "Activity quantity")
	recordsAddSharedCmd.Flags().String("date", "", "Date (YYYY-MM-DD), defaults to today")
	recordsAddSharedCmd.Flags().String("method", "", "Allocation method: equal, budget, duration")
	recordsAddSharedCmd.Flags().StringSlice("targets", nil, "Project IDs to split across (empty = stays unallocated)")
}
