package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/thebtf/scribe/internal/config"
	"github.com/thebtf/scribe/pkg/models"
)

var (
	flagDay   bool
	flagStart string
	flagEnd   string
	flagPrint bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [export-path]",
	Short: "Generate a journal for a period from a message export",
	Long: `Generate runs the full pipeline once: load the export, classify every
message, assemble the journal and deliver it to the configured outputs.
Without period flags the current Monday-to-Friday work week is covered.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}

		sourcePath := ""
		if len(args) == 1 {
			sourcePath = args[0]
		}

		eng, err := buildEngine(cfg, sourcePath, nil)
		if err != nil {
			return err
		}
		defer eng.Close()

		period, err := resolvePeriod()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		doc, err := eng.pipeline.Run(ctx, period)
		if err != nil {
			return err
		}

		if flagPrint {
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		}
		return nil
	},
}

// resolvePeriod turns the period flags into a Period. Flags are exclusive
// layers: explicit start/end beats --day beats the default work week.
func resolvePeriod() (models.Period, error) {
	if flagStart != "" || flagEnd != "" {
		if flagStart == "" || flagEnd == "" {
			return models.Period{}, fmt.Errorf("--start and --end must be given together")
		}
		start, err := time.Parse("2006-01-02", flagStart)
		if err != nil {
			return models.Period{}, fmt.Errorf("invalid --start: %w", err)
		}
		end, err := time.Parse("2006-01-02", flagEnd)
		if err != nil {
			return models.Period{}, fmt.Errorf("invalid --end: %w", err)
		}
		period := models.Period{Start: start, End: end.Add(23*time.Hour + 59*time.Minute + 59*time.Second)}
		if !period.Valid() {
			return models.Period{}, fmt.Errorf("--end is before --start")
		}
		return period, nil
	}
	if flagDay {
		return models.Day(time.Now()), nil
	}
	return models.WorkWeek(time.Now()), nil
}

func init() {
	generateCmd.Flags().BoolVar(&flagDay, "day", false, "Cover today instead of the work week")
	generateCmd.Flags().StringVar(&flagStart, "start", "", "Period start (YYYY-MM-DD)")
	generateCmd.Flags().StringVar(&flagEnd, "end", "", "Period end (YYYY-MM-DD), inclusive")
	generateCmd.Flags().BoolVar(&flagPrint, "print", false, "Print the journal to stdout")
	rootCmd.AddCommand(generateCmd)
}
