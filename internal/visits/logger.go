package visits

import "github.com/tphakala/birdhomie/internal/logger"

// GetLogger returns the visits module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("visits")
}
