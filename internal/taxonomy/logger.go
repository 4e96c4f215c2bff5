package taxonomy

import "github.com/tphakala/birdhomie/internal/logger"

// GetLogger returns the taxonomy module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("taxonomy")
}
