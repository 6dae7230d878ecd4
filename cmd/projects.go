package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/slatecarbon/slatecarbon/pkg/model"
	"github.com/slatecarbon/slatecarbon/pkg/storage"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage production projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		projects, err := db.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects yet. Add one with 'slatecarbon projects add'.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tBUDGET\tSTART\tEND\t")
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
				p.ID, p.Name, p.Status, p.Budget, fmtDate(p.StartDate), fmtDate(p.EndDate))
		}
		w.Flush()
		return nil
	},
}

var projectsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			return fmt.Errorf("--name is required")
		}
		status, _ := cmd.Flags().GetString("status")
		switch model.ProjectStatus(status) {
		case model.StatusPlanning, model.StatusActive, model.StatusCompleted:
		default:
			return fmt.Errorf("invalid status '%s' (planning, active, completed)", status)
		}

		budgetStr, _ := cmd.Flags().GetString("budget")
		budget, err := decimal.NewFromString(budgetStr)
		if err != nil {
			return fmt.Errorf("invalid budget '%s': %w", budgetStr, err)
		}
		start, err := parseDateFlag(cmd, "start")
		if err != nil {
			return err
		}
		end, err := parseDateFlag(cmd, "end")
		if err != nil {
			return err
		}
		if !start.IsZero() && !end.IsZero() && end.Before(start) {
			return fmt.Errorf("--end is before --start")
		}

		db, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		now := nowUTC()
		p := model.Project{
			ID:        uuid.NewString(),
			Name:      name,
			Status:    model.ProjectStatus(status),
			Budget:    budget,
			StartDate: start,
			EndDate:   end,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := db.SaveProject(cmd.Context(), p); err != nil {
			return err
		}
		fmt.Printf("Added project %s (%s)\n", p.Name, p.ID)
		return nil
	},
}

var projectsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a project locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Delete(cmd.Context(), storage.KindProject, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted project %s. Allocation rules targeting it will skip it from now on.\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsAddCmd)
	projectsCmd.AddCommand(projectsRmCmd)

	projectsAddCmd.Flags().String("name", "", "Project name (required)")
	projectsAddCmd.Flags().String("status", "active", "Project status: planning, active, completed")
	projectsAddCmd.Flags().String("budget", "0", "Production budget, used by budget-weighted allocation")
	projectsAddCmd.Flags().String("start", "", "Start date (YYYY-MM-DD), used by duration-weighted allocation")
	projectsAddCmd.Flags().String("end", "", "End date (YYYY-MM-DD)")
}

func parseDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s '%s': expected YYYY-MM-DD", name, s)
	}
	return t.UTC(), nil
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}
