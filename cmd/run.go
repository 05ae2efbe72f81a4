package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"bigscreen/internal/clix"
	"bigscreen/internal/models"
	"bigscreen/internal/pipeline"
)

var (
	runOutput string
	runQuiet  bool
)

// runResult is what `run --output json` prints.
type runResult struct {
	Run    models.PipelineRun     `json:"run"`
	Result *models.AnalysisBundle `json:"result"`
	Cards  []models.ResultCard    `json:"cards"`
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <source>",
	Short: "Run the full analysis pipeline for a data source",
	Long: `Submits keyword extraction, preprocessing and classification for the
given source (law, paper, report, policy, book), polls each stage until it
finishes and prints the aggregated results. Ctrl-C cancels the run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := clix.ParseOutput(cmd.Flags())
		if err != nil {
			return err
		}

		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		source := args[0]
		if err := appInstance.CatalogService.ValidateSource(cmd.Context(), source); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if !runQuiet {
			progress := cmd.ErrOrStderr()
			var (
				mu   sync.Mutex
				last string
			)
			appInstance.OnRunUpdate(func(run models.PipelineRun) {
				line := clix.ProgressLine(run)
				mu.Lock()
				defer mu.Unlock()
				if line != last {
					fmt.Fprintln(progress, line)
					last = line
				}
			})
		}

		bundle, runErr := appInstance.Sequencer.Run(ctx, source)
		run, _ := appInstance.Sequencer.Board().Snapshot()

		out := cmd.OutOrStdout()
		if runErr != nil {
			if output == "table" {
				clix.RenderStages(out, run)
			}
			return fmt.Errorf("analysis of %s failed: %s", source, pipeline.UserMessage(runErr))
		}

		if output == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(runResult{Run: run, Result: bundle, Cards: bundle.Cards()})
		}

		fmt.Fprintln(out)
		clix.RenderStages(out, run)
		fmt.Fprintln(out)
		clix.RenderBundle(out, bundle)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runOutput, "output", "o", "table", "Output format (table, json)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Do not print progress updates")
}
