// File: cmd/root.go

// Package cmd wires the command surface. Commands stay thin: flag handling,
// config resolution, and output rendering live here; everything else is the
// pipeline's job.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"hindsight/internal/config"
	"hindsight/internal/observability"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "hindsight",
	Short:   "hindsight explains why a runtime error happened, using your git history",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "hindsight"})
			return err
		}
		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("starting hindsight", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command. Exit code 0 covers any completed analysis,
// including degraded and no-candidate outcomes; only unrecoverable input
// errors exit non-zero.
func Execute(ctx context.Context) {
	defer observability.Sync()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ~/.hindsight/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.AddCommand(newAnalyzeCmd(), newCacheCmd(), newVersionCmd())
}

// initializeConfig reads the config file and environment variables.
func initializeConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(config.DefaultConfigDir())
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("HINDSIGHT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars apply.
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.NewConfigFromViper(viper.GetViper())
}
