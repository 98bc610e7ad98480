package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/scribe/internal/config"
	"github.com/thebtf/scribe/internal/watcher"
	"github.com/thebtf/scribe/pkg/models"
)

var watchCmd = &cobra.Command{
	Use:   "watch <inbox-dir>",
	Short: "Watch a directory and run on every new export",
	Long: `Watch monitors an inbox directory. Each JSON export dropped into it
triggers a journal run over the current work week, using the export as
the message source.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		w, err := watcher.New(args[0], func(path string) {
			eng, err := buildEngine(cfg, path, nil)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("Failed to build pipeline for export")
				return
			}
			defer eng.Close()

			if _, err := eng.pipeline.Run(ctx, models.WorkWeek(time.Now())); err != nil {
				log.Error().Err(err).Str("path", path).Msg("Journal run failed")
			}
		})
		if err != nil {
			return err
		}

		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()

		<-ctx.Done()
		log.Info().Msg("Shutting down watcher")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
