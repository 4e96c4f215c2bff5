// Package conf loads and validates birdhomie settings from config.yaml,
// environment variables and built-in defaults.
package conf

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// Database backends
const (
	DatabaseSQLite = "sqlite"
	DatabaseMySQL  = "mysql"
)

// Settings holds the complete application configuration
type Settings struct {
	Debug bool

	Version   string `yaml:"-"`
	BuildDate string `yaml:"-"`

	Main struct {
		Name string // node name, used as MQTT client id and in notifications
	}

	Logging logger.LoggingConfig

	Database  DatabaseSettings
	Storage   StorageSettings
	Processor ProcessorSettings
	Models    ModelSettings
	Taxonomy  TaxonomySettings
	Scheduler SchedulerSettings
	MQTT      MQTTSettings
	Notify    NotifySettings
	API       APISettings
	Sentry    SentrySettings

	// FileRetentionDays is how long processed clips are kept; 0 keeps them forever
	FileRetentionDays int
}

// DatabaseSettings selects and configures the datastore backend
type DatabaseSettings struct {
	Type   string // sqlite or mysql
	SQLite struct {
		Path string
	}
	MySQL struct {
		Host     string
		Port     string
		Username string
		Password string
		Database string
	}
	SlowQueryMS int // statements slower than this are logged at warn, 0 disables
}

// StorageSettings holds filesystem locations
type StorageSettings struct {
	DataDir   string // root for clips referenced by files.file_path
	OutputDir string // per-file outputs: <output>/<file_id>/crops, annotated.mp4
}

// ProcessorSettings tunes the detection-to-visit pipeline
type ProcessorSettings struct {
	Workers                int     // concurrent files per batch, 0 picks from CPU count
	FrameSkip              int     // process every Nth frame
	IntervalMinutes        int     // scheduler period
	MinDetectionConfidence float64 // detector threshold
	MinSpeciesConfidence   float64 // grouping threshold
	EdgeMargin             int     // pixels
	Annotate               bool    // write annotated.mp4
	FFmpegPath             string
	FFprobePath            string
	JPEGQuality            int
}

// ModelSettings configures the inference servers
type ModelSettings struct {
	Detector struct {
		Endpoint string
		Name     string
		ClassID  int // COCO "bird"
		Timeout  time.Duration
	}
	Classifier struct {
		Endpoint    string
		Name        string
		Temperature float64
		Species     []string // empty uses the built-in regional list
		Timeout     time.Duration
	}
}

// TaxonomySettings configures the iNaturalist client
type TaxonomySettings struct {
	BaseURL   string
	Locale    string // second common name locale
	RateLimit time.Duration
	Timeout   time.Duration
	CacheTTL  time.Duration
}

// SchedulerSettings configures background task execution
type SchedulerSettings struct {
	Enabled bool
}

// MQTTSettings configures the event publisher
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	Topic    string
	Username string
	Password string
	Retain   bool
}

// NotifySettings configures failure notifications
type NotifySettings struct {
	Enabled bool
	URLs    []string // shoutrrr service URLs
}

// APISettings configures the management HTTP server
type APISettings struct {
	Enabled bool
	Listen  string
}

// SentrySettings configures error telemetry
type SentrySettings struct {
	Enabled bool
	DSN     string
}

var (
	settingsMutex    sync.RWMutex
	settingsInstance *Settings
)

// Load reads configuration from configFile, or from the first config.yaml
// found in the default search paths when configFile is empty. A default
// config file is written when none exists.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	v := viper.New()
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("config").
			Category(errors.CategoryConfiguration).
			Build()
	}

	settingsInstance = settings
	return settingsInstance, nil
}

func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	if err := bindEnvVars(v); err != nil {
		return err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound) {
				return createDefaultConfig(v, configFile)
			}
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(v, filepath.Join(configPaths[0], "config.yaml"))
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the current defaults to configPath and reads it back
func createDefaultConfig(v *viper.Viper, configPath string) error {
	defaults := &Settings{}
	if err := v.Unmarshal(defaults); err != nil {
		return fmt.Errorf("error building default settings: %w", err)
	}
	if err := SaveYAMLConfig(configPath, defaults); err != nil {
		return err
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))

	v.SetConfigFile(configPath)
	return v.ReadInConfig()
}

// GetSettings returns the most recently loaded settings
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath atomically
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
