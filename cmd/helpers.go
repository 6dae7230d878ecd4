package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/slatecarbon/slatecarbon/internal/utils"
	"github.com/slatecarbon/slatecarbon/pkg/model"
	"github.com/slatecarbon/slatecarbon/pkg/reconcile"
	"github.com/slatecarbon/slatecarbon/pkg/remote"
	"github.com/slatecarbon/slatecarbon/pkg/storage"
)

func openStore(cmd *cobra.Command) (*storage.DB, error) {
	dbPath, _ := cmd.Flags().GetString("dbpath")
	if dbPath == "" {
		dbPath = rootDBPath()
	}
	return storage.Open(dbPath)
}

func rootDBPath() string {
	dbPath, _ := rootCmd.PersistentFlags().GetString("dbpath")
	if dbPath == "" {
		dbPath = "slatecarbon.sqlite"
	}
	return dbPath
}

func syncConfig() model.SyncConfig {
	cfg := model.SyncConfig{
		AutoSync:        viper.GetBool("sync.auto"),
		IntervalMinutes: viper.GetInt("sync.interval_minutes"),
		MaxRetries:      viper.GetInt("sync.max_retries"),
		Conflicts:       model.ConflictPolicy(viper.GetString("sync.conflict_resolution")),
	}
	if cfg.IntervalMinutes <= 0 {
		utils.Log.Warnf("Invalid sync interval %d, using 30 minutes", cfg.IntervalMinutes)
		cfg.IntervalMinutes = 30
	}
	switch cfg.Conflicts {
	case model.PolicyServer, model.PolicyLocal, model.PolicyManual:
	default:
		cfg.Conflicts = model.PolicyManual
	}
	return cfg
}

func newEngine(db *storage.DB) (*reconcile.Engine, error) {
	baseURL := viper.GetString("remote.url")
	if baseURL == "" {
		return nil, fmt.Errorf("no remote server configured; set remote.url in ~/.slatecarbon.yaml")
	}
	client := remote.New(baseURL, viper.GetString("remote.token"))
	return reconcile.NewEngine(reconcile.Config{
		Store:  db,
		Client: client,
		Sync:   syncConfig(),
		Log:    utils.Log,
	}), nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
