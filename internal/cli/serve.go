package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thebtf/scribe/internal/config"
	"github.com/thebtf/scribe/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve journal runs over HTTP",
	Long: `Serve starts an HTTP server exposing run triggering, the most recent
journal, and a live event stream of run progress.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}

		events := server.NewEventStream()
		eng, err := buildEngine(cfg, "", events)
		if err != nil {
			return err
		}
		defer eng.Close()

		srv := server.New(eng.pipeline, events)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return srv.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
