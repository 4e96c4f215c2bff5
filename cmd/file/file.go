package file

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdhomie/internal/app"
	"github.com/tphakala/birdhomie/internal/conf"
)

// Command processes a single clip or still image
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file [path]",
		Short: "Process a single clip",
		Long:  "Process one file under the file processor lock; it fails while serve or process runs a batch.\nRelative paths are resolved against storage.datadir.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			processed, res, err := a.ProcessFile(ctx, args[0])
			if err != nil {
				return err
			}
			if !res.Acquired {
				return fmt.Errorf("file processor is already running (another instance holds the lock)")
			}
			if !processed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: already processed or failed, see log\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: processed\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&settings.Storage.OutputDir, "output", settings.Storage.OutputDir, "Output directory")
	return cmd
}
