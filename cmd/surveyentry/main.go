package main

import (
	"fmt"
	"os"

	"surveyentry/internal/app"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFile string
	verbose bool

	cfg    app.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "surveyentry",
	Short: "Transcribe paper survey responses into the survey store",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
		}
		cfg = app.LoadConfig()
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		var err error
		logger, err = app.NewLogger(level)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	operatorCmd.AddCommand(operatorCreateCmd)
	respondentsCmd.AddCommand(respondentsImportCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(operatorCmd)
	rootCmd.AddCommand(respondentsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
