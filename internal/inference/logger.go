package inference

import "github.com/tphakala/birdhomie/internal/logger"

// GetLogger returns the inference module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("inference")
}
