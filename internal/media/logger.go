package media

import "github.com/tphakala/birdhomie/internal/logger"

// GetLogger returns the media module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("media")
}
