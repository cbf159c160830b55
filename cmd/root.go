// Package cmd implements the command-line interface for goingest.
// It provides the root command and subcommands for running capture
// batches and managing the sandbox pool.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chuanzhoupan/goingest/cmd/pool"
	"github.com/chuanzhoupan/goingest/cmd/run"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// Debug enables debug logging for all commands.
	Debug bool

	rootCmd = &cobra.Command{
		Use:   "goingest",
		Short: "A sandboxed traffic capture scheduler",
		Long: `goingest distributes capture jobs across a pool of Docker sandboxes,
retries failures across the pool, and relocates captured artifacts into a
date- and domain-partitioned store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are available to Viper
	_ = godotenv.Load()

	// Parse flags early to get the debug flag before creating a logger
	_ = rootCmd.ParseFlags(os.Args[1:])

	if err := initConfig(); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml or ./config/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("goingest version %s\n", "1.0.0")
		},
	})

	rootCmd.AddCommand(run.Command())
	rootCmd.AddCommand(pool.Command())
}

// initConfig reads the config file and environment variables.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; defaults and environment variables
		// cover unset keys.
		fmt.Fprintf(os.Stderr, "Warning: config file not found: %v (using defaults and environment variables)\n", err)
	}

	if err := bindEnvVars(); err != nil {
		return err
	}

	if Debug || viper.GetBool("logging.debug") {
		viper.Set("logging.level", "debug")
		Debug = true
	}

	return nil
}

// bindEnvVars maps well-known environment variables to config keys.
func bindEnvVars() error {
	bindings := map[string][]string{
		"logging.level":       {"LOG_LEVEL"},
		"logging.encoding":    {"LOG_FORMAT"},
		"pool.host_code_path": {"HOST_CODE_PATH"},
		"pool.image":          {"DOCKER_IMAGE"},
		"store.base_dst":      {"BASE_DST"},
		"database.host":       {"DB_HOST"},
		"database.port":       {"DB_PORT"},
		"database.user":       {"DB_USER"},
		"database.password":   {"DB_PASSWORD"},
		"database.dbname":     {"DB_NAME"},
	}
	for key, envs := range bindings {
		if err := viper.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := viper.BindPFlag("logging.debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("failed to bind debug flag: %w", err)
	}
	return nil
}
