package process

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdhomie/internal/app"
	"github.com/tphakala/birdhomie/internal/conf"
)

// Command processes every pending file once, under the task lock
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Process all pending files once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.RunBatch(ctx)
			if !res.Acquired && err == nil {
				return fmt.Errorf("file processor is already running (another instance holds the lock)")
			}
			return err
		},
	}
}
