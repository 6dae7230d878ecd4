package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/slatecarbon/slatecarbon/internal/utils"
)

var cfgFile string

const LOGO = `        _       _                     _
    ___| | __ _| |_ ___  ___ __ _ _ _| |__   ___  _ __
   / __| |/ _` + "`" + ` | __/ _ \/ __/ _` + "`" + ` | '__| '_ \ / _ \| '_ \
   \__ \ | (_| | ||  __/ (_| (_| | |  | |_) | (_) | | | |
   |___/_|\__,_|\__\___|\___\__,_|_|  |_.__/ \___/|_| |_|

`

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "slatecarbon",
	Short: "Carbon emission tracking for film productions.",
	Long: LOGO + `slatecarbon tracks production carbon emissions locally, splits shared
overhead across your active projects, and keeps everything reconciled with
your team's server - even after working offline.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.slatecarbon.yaml)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: slatecarbon.sqlite in CWD)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".slatecarbon")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.slatecarbon.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default empty values for all keys
	viper.SetDefault("remote.url", "")
	viper.SetDefault("remote.token", "")
	viper.SetDefault("sync.auto", true)
	viper.SetDefault("sync.interval_minutes", 30)
	viper.SetDefault("sync.max_retries", 3)
	viper.SetDefault("sync.conflict_resolution", "manual")

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
