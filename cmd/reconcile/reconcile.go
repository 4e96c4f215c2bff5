package reconcile

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdhomie/internal/conf"
	"github.com/tphakala/birdhomie/internal/datastore"
	"github.com/tphakala/birdhomie/internal/datastore/repository"
	"github.com/tphakala/birdhomie/internal/scheduler"
)

// Command marks stale task runs failed and resets interrupted files
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recover task runs and files left by a crashed process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := datastore.Open(&settings.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			db := store.DB()
			lock := scheduler.NewTaskLock(repository.NewTaskRunRepository(db))
			res, err := scheduler.Reconcile(cmd.Context(), lock, repository.NewFileRepository(db))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "interrupted tasks: %d, files reset to pending: %d\n", res.Tasks, res.Files)
			return nil
		},
	}
}
