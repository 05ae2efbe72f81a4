package cmd

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bigscreen/internal/app"
	"bigscreen/internal/clix"
	"bigscreen/internal/models"
	"bigscreen/internal/store"
)

var (
	historyLimit  int
	historyOffset int
	historySource string
	historyStatus string
)

// historyCmd represents the base command for run history operations
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View analysis run history",
	Long:  `Displays past analysis runs recorded by the application.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listHistoryCmd.RunE(cmd, args)
	},
}

var listHistoryCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent analysis runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := historyApp(cmd)
		if err != nil {
			return err
		}

		pagination, err := clix.ParsePagination(cmd.Flags())
		if err != nil {
			return err
		}

		runs, err := appInstance.HistoryService.ListRuns(cmd.Context(), historySource, historyStatus, pagination.Limit, pagination.Offset)
		if err != nil {
			return fmt.Errorf("error listing run history: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs found.")
			return nil
		}
		clix.RenderRuns(out, runs)
		return nil
	},
}

var showHistoryCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the result of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := historyApp(cmd)
		if err != nil {
			return err
		}

		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run ID %q: %w", args[0], err)
		}

		rec, err := appInstance.HistoryService.GetRun(cmd.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("run %s not found", id)
			}
			return err
		}

		out := cmd.OutOrStdout()
		clix.RenderRuns(out, []*models.RunRecord{rec})
		if rec.Result == "" {
			return nil
		}
		bundle, err := appInstance.HistoryService.GetResult(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		clix.RenderBundle(out, bundle)
		return nil
	},
}

// historyApp returns the app, failing when run history is disabled.
func historyApp(cmd *cobra.Command) (*app.App, error) {
	appInstance, err := GetAppFromContext(cmd.Context())
	if err != nil {
		return nil, err
	}
	if appInstance.HistoryService == nil {
		return nil, errors.New("run history is disabled (database.driver: none)")
	}
	return appInstance, nil
}

func init() {
	for _, c := range []*cobra.Command{historyCmd, listHistoryCmd} {
		c.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to show")
		c.Flags().IntVar(&historyOffset, "offset", 0, "Number of runs to skip")
		c.Flags().StringVar(&historySource, "source", "", "Only show runs of this source")
		c.Flags().StringVar(&historyStatus, "status", "", "Only show runs with this status (completed, failed, cancelled)")
	}

	historyCmd.AddCommand(listHistoryCmd)
	historyCmd.AddCommand(showHistoryCmd)

	rootCmd.AddCommand(historyCmd)
}
