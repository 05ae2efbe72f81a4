package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bigscreen/internal/backendsim"
	"bigscreen/internal/models"
)

var (
	simAddr        string
	simFailStage   string
	simFailMessage string
	simLatency     time.Duration
	simPolls       []int
)

// simulateCmd serves a scripted stand-in for the analysis backend
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Serve a simulated analysis backend",
	Long: `Starts an HTTP server implementing the analysis backend contract with
scripted progress, for demos and local development. Point backend.base_url
at it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := backendsim.Options{Latency: simLatency}
		if len(simPolls) == 3 {
			opts.ExtractionPolls, opts.PreprocessingPolls, opts.ClassificationPolls = simPolls[0], simPolls[1], simPolls[2]
		} else if len(simPolls) != 0 {
			return fmt.Errorf("--polls takes three values (extraction,preprocessing,classification), got %d", len(simPolls))
		}
		if simFailStage != "" {
			kind := models.StageKind(simFailStage)
			if !kind.Valid() {
				return fmt.Errorf("unknown stage %q", simFailStage)
			}
			opts.FailStages = map[models.StageKind]string{kind: simFailMessage}
		}

		srv := &http.Server{Addr: simAddr, Handler: backendsim.New(opts).Handler()}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			log.Infof("Simulated analysis backend listening on http://%s", simAddr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to run simulated backend: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVar(&simAddr, "addr", "localhost:8000", "Address to listen on")
	simulateCmd.Flags().StringVar(&simFailStage, "fail-stage", "", "Stage whose task fails (keyword-extraction, preprocessing, classification)")
	simulateCmd.Flags().StringVar(&simFailMessage, "fail-message", "", "Failure reason reported by --fail-stage (empty reports none)")
	simulateCmd.Flags().DurationVar(&simLatency, "latency", 0, "Latency added to every request")
	simulateCmd.Flags().IntSliceVar(&simPolls, "polls", nil, "Polls per stage before completion: extraction,preprocessing,classification")
}
