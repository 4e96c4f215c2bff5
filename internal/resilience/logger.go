package resilience

import "github.com/tphakala/birdhomie/internal/logger"

// GetLogger returns the resilience module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("resilience")
}
