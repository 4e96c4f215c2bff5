package scheduler

import "github.com/tphakala/birdhomie/internal/logger"

// GetLogger returns the scheduler module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("scheduler")
}
