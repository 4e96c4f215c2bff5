package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tphakala/birdhomie/cmd"
	"github.com/tphakala/birdhomie/internal/conf"
	"github.com/tphakala/birdhomie/internal/logger"
	"github.com/tphakala/birdhomie/internal/telemetry"
)

// set at build time with -ldflags
var (
	buildDate string
	version   = "dev"
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	settings, err := conf.Load(os.Getenv("BIRDHOMIE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		return 1
	}
	settings.Version = version
	settings.BuildDate = buildDate

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
	}
	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing logging: %v\n", err)
		return 1
	}
	logger.SetGlobal(central)
	defer func() {
		if err := central.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing log files: %v\n", err)
		}
	}()
	log := central.Module("main")

	sentryEnabled, err := telemetry.InitSentry(settings)
	if err != nil {
		log.Warn("telemetry disabled", logger.Error(err))
	}
	if sentryEnabled {
		defer telemetry.Flush(2 * time.Second)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error("command failed", logger.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
