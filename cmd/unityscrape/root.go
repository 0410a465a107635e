package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/varoOP/unityscrape/internal/app"
	"github.com/varoOP/unityscrape/internal/config"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "unityscrape",
	Short: "Scrape anime records from AnimeUnity",
	Long: `unityscrape extracts anime records from AnimeUnity, either by rendering
episode pages in a Chrome driver or by replaying the site's session to query
its search API over plain HTTP.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// An interrupt cancels the running scrape, which still releases the driver.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.unityscrape.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("metrics-file", "", "write run metrics to this file in the textfile collector format")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("metrics_file", rootCmd.PersistentFlags().Lookup("metrics-file"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.Setup(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in home directory and current directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile == "" {
		viper.SetConfigName(".unityscrape")
		if err := viper.ReadInConfig(); err == nil {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// withApp builds the application, runs fn and writes the metrics file
// whatever fn returned
func withApp(fn func(a *app.App) error) error {
	application, err := app.NewApp()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	runErr := fn(application)

	if err := application.WriteMetrics(viper.GetString("metrics_file")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	return runErr
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("out", "", "merge the records into this catalog file (.json or .yaml)")
	cmd.Flags().String("db", "", "store the records in this sqlite database")
}

func targetFromFlags(cmd *cobra.Command) app.Target {
	out, _ := cmd.Flags().GetString("out")
	db, _ := cmd.Flags().GetString("db")
	return app.Target{Catalog: out, DBPath: db}
}
