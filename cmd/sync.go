package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/slatecarbon/slatecarbon/internal/utils"
	"github.com/slatecarbon/slatecarbon/pkg/model"
)

// syncCmd implements: slatecarbon sync
//
//	--force   Bypass the recently-synced check
//	--watch   Keep running: reconcile on the configured interval
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile local data with the remote server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'slatecarbon sync --help'", args[0])
		}
		db, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		engine, err := newEngine(db)
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		watch, _ := cmd.Flags().GetBool("watch")

		res := engine.Run(cmd.Context(), force)
		printSyncResult(res)

		if watch {
			cfg := syncConfig()
			if !cfg.AutoSync {
				utils.Log.Warn("sync.auto is disabled; --watch will only react to manual runs")
			}
			utils.Log.Infof("Watching: reconciling every %s (Ctrl+C to stop)", cfg.Interval())
			engine.Watch(context.Background(), nil)
			return nil
		}

		// A failed pass schedules backoff retries on a timer that would die
		// with the process. Wait them out so the printed retry actually runs.
		if res.Status == model.SyncError && engine.RetryPending() {
			utils.Log.Info("Waiting for scheduled retries to finish...")
			for engine.RetryPending() {
				time.Sleep(500 * time.Millisecond)
			}
			printSyncResult(engine.LastResult())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("force", false, "Reconcile even if a sync ran recently")
	syncCmd.Flags().Bool("watch", false, "Stay running and reconcile on the configured interval")
}

func printSyncResult(res model.SyncResult) {
	switch res.Status {
	case model.SyncSuccess:
		fmt.Printf("✅ %s", res.Message)
		if res.Counts != nil {
			fmt.Printf(" (%d projects, %d records, %d operational, %d uploaded)",
				res.Counts.Projects, res.Counts.Records, res.Counts.Operational, res.Counts.Uploaded)
		}
		fmt.Println()
	case model.SyncOffline:
		fmt.Printf("📡 offline: %s\n", res.Message)
	case model.SyncError:
		fmt.Printf("❌ %s\n", res.Message)
	default:
		fmt.Printf("%s: %s\n", res.Status, res.Message)
	}
}
