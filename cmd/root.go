package cmd

import (
	"context"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"bigscreen/internal/app"
	"bigscreen/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "bigscreen",
	Short: "Bigscreen analysis pipeline orchestrator",
	Long: `Bigscreen drives the document analysis backend behind the dashboard's
data analysis panel: keyword extraction, preprocessing and classification
run in order for a data source, and the results are aggregated into one
display-ready bundle.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is given, print help.
		cmd.Help()
	},
	// PersistentPreRunE runs before any subcommand's RunE
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipAppInit(cmd) {
			return nil
		}

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		appInstance, err := app.NewApp(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}

		// Store the app instance in the command's context
		ctx := context.WithValue(cmd.Context(), appKey, appInstance)
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appInstance, err := GetAppFromContext(cmd.Context()); err == nil {
			appInstance.Close()
		}
	},
}

// skipAppInit reports whether cmd runs without a backend client or store.
func skipAppInit(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "version", "simulate", "bigscreen":
		return true
	}
	return false
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Define a custom type for the context key to avoid collisions.
type contextKey string

const appKey contextKey = "app"

// Helper function to retrieve the app instance from context
func GetAppFromContext(ctx context.Context) (*app.App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		// This should not happen if PersistentPreRunE ran successfully
		return nil, fmt.Errorf("application instance not found in context")
	}
	return appInstance, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./config.yaml)")

	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check backend and database connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}

		fmt.Fprintf(out, "Checking analysis backend at %s...\n", appInstance.Config.Backend.BaseURL)
		sources, err := appInstance.CatalogService.Sources(ctx)
		if err != nil {
			return fmt.Errorf("backend check failed: %w", err)
		}
		fmt.Fprintf(out, "Backend reachable, %d data sources.\n", len(sources))

		if appInstance.RunStore == nil {
			fmt.Fprintln(out, "Run history disabled (database.driver: none).")
			return nil
		}
		fmt.Fprintln(out, "Checking database connectivity...")
		if err := appInstance.RunStore.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		fmt.Fprintln(out, "Database connection successful.")
		return nil
	},
}
