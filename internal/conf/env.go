package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding maps one environment variable onto a config key
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"processor.minspeciesconfidence", "MIN_SPECIES_CONFIDENCE", validateEnvUnitInterval},
		{"processor.mindetectionconfidence", "MIN_DETECTION_CONFIDENCE", validateEnvUnitInterval},
		{"processor.frameskip", "FRAME_SKIP", validateEnvPositiveInt},
		{"processor.intervalminutes", "PROCESSOR_INTERVAL_MINUTES", validateEnvPositiveInt},
		{"processor.workers", "PROCESSOR_WORKERS", validateEnvNonNegativeInt},
		{"fileretentiondays", "FILE_RETENTION_DAYS", validateEnvNonNegativeInt},

		{"storage.datadir", "BIRDHOMIE_DATA_DIR", nil},
		{"storage.outputdir", "BIRDHOMIE_OUTPUT_DIR", nil},
		{"database.type", "BIRDHOMIE_DATABASE", validateEnvDatabase},
		{"database.sqlite.path", "BIRDHOMIE_SQLITE_PATH", nil},
		{"database.mysql.password", "BIRDHOMIE_MYSQL_PASSWORD", nil},
		{"models.detector.endpoint", "BIRDHOMIE_DETECTOR_URL", nil},
		{"models.classifier.endpoint", "BIRDHOMIE_CLASSIFIER_URL", nil},
		{"sentry.dsn", "SENTRY_DSN", nil},
	}
}

// bindEnvVars binds every variable and collects invalid values into one error
func bindEnvVars(v *viper.Viper) error {
	var problems []string

	for _, b := range getEnvBindings() {
		if err := v.BindEnv(b.ConfigKey, b.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", b.EnvVar, err))
			continue
		}
		if b.Validate == nil {
			continue
		}
		if value := os.Getenv(b.EnvVar); value != "" {
			if err := b.Validate(value); err != nil {
				problems = append(problems, fmt.Sprintf("invalid %s value %q: %v", b.EnvVar, value, err))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func validateEnvUnitInterval(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvDatabase(value string) error {
	switch strings.ToLower(value) {
	case DatabaseSQLite, DatabaseMySQL:
		return nil
	}
	return fmt.Errorf("must be %q or %q", DatabaseSQLite, DatabaseMySQL)
}
