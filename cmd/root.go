package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/birdhomie/cmd/file"
	"github.com/tphakala/birdhomie/cmd/process"
	"github.com/tphakala/birdhomie/cmd/reconcile"
	"github.com/tphakala/birdhomie/cmd/serve"
	"github.com/tphakala/birdhomie/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "birdhomie",
		Short:         "Bird feeder camera clip processor",
		Long:          "Detects birds in camera clips, classifies species and records visits.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       settings.Version,
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		process.Command(settings),
		file.Command(settings),
		reconcile.Command(settings),
	)
	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
	rootCmd.PersistentFlags().IntVarP(&settings.Processor.Workers, "workers", "w", settings.Processor.Workers,
		"Files processed concurrently, 0 picks from the CPU count")
	rootCmd.PersistentFlags().IntVar(&settings.Processor.FrameSkip, "frame-skip", settings.Processor.FrameSkip,
		"Process every Nth frame")
	rootCmd.PersistentFlags().BoolVar(&settings.Processor.Annotate, "annotate", settings.Processor.Annotate,
		"Write an annotated copy of each clip")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
