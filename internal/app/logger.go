package app

import "github.com/tphakala/birdhomie/internal/logger"

// GetLogger returns the app module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}
