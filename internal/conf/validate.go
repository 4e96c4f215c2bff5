package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError collects every problem found in a settings tree
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %v", ve.Errors)
}

// ValidateSettings validates the whole settings tree and normalizes a few values in place
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateDatabaseSettings,
		validateProcessorSettings,
		validateModelSettings,
		validateTaxonomySettings,
		validateMQTTSettings,
		validateAPISettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if settings.FileRetentionDays < 0 {
		ve.Errors = append(ve.Errors, "fileretentiondays must not be negative")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDatabaseSettings(s *Settings) error {
	var errs []string
	db := &s.Database
	db.Type = strings.ToLower(db.Type)
	switch db.Type {
	case DatabaseSQLite:
		if db.SQLite.Path == "" {
			errs = append(errs, "sqlite path must be set")
		}
	case DatabaseMySQL:
		if db.MySQL.Host == "" || db.MySQL.Database == "" {
			errs = append(errs, "mysql host and database must be set")
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported database type %q", db.Type))
	}
	if len(errs) > 0 {
		return fmt.Errorf("database settings errors: %v", errs)
	}
	return nil
}

func validateProcessorSettings(s *Settings) error {
	var errs []string
	p := &s.Processor

	if p.MinSpeciesConfidence < 0 || p.MinSpeciesConfidence > 1 {
		errs = append(errs, "minspeciesconfidence must be between 0 and 1")
	}
	if p.MinDetectionConfidence < 0 || p.MinDetectionConfidence > 1 {
		errs = append(errs, "mindetectionconfidence must be between 0 and 1")
	}
	if p.FrameSkip < 1 {
		errs = append(errs, "frameskip must be at least 1")
	}
	if p.IntervalMinutes < 1 {
		errs = append(errs, "intervalminutes must be at least 1")
	}
	if p.Workers < 0 {
		errs = append(errs, "workers must not be negative")
	}
	if p.EdgeMargin < 0 {
		errs = append(errs, "edgemargin must not be negative")
	}
	if p.JPEGQuality < 1 || p.JPEGQuality > 100 {
		errs = append(errs, "jpegquality must be between 1 and 100")
	}
	if s.Storage.OutputDir == "" {
		errs = append(errs, "storage outputdir must be set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("processor settings errors: %v", errs)
	}
	return nil
}

func validateModelSettings(s *Settings) error {
	var errs []string
	if err := validateHTTPURL(s.Models.Detector.Endpoint); err != nil {
		errs = append(errs, "detector endpoint: "+err.Error())
	}
	if err := validateHTTPURL(s.Models.Classifier.Endpoint); err != nil {
		errs = append(errs, "classifier endpoint: "+err.Error())
	}
	if s.Models.Classifier.Temperature <= 0 {
		errs = append(errs, "classifier temperature must be positive")
	}
	if s.Models.Detector.ClassID < 0 {
		errs = append(errs, "detector classid must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("model settings errors: %v", errs)
	}
	return nil
}

func validateTaxonomySettings(s *Settings) error {
	if err := validateHTTPURL(s.Taxonomy.BaseURL); err != nil {
		return fmt.Errorf("taxonomy settings errors: [baseurl: %v]", err)
	}
	if s.Taxonomy.Timeout <= 0 {
		return fmt.Errorf("taxonomy settings errors: [timeout must be positive]")
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	var errs []string
	if s.MQTT.Broker == "" {
		errs = append(errs, "broker must be set")
	} else if u, err := url.Parse(s.MQTT.Broker); err != nil || u.Host == "" {
		errs = append(errs, fmt.Sprintf("invalid broker URL %q", s.MQTT.Broker))
	}
	if s.MQTT.Topic == "" {
		errs = append(errs, "topic must be set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("mqtt settings errors: %v", errs)
	}
	return nil
}

func validateAPISettings(s *Settings) error {
	if !s.API.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(s.API.Listen); err != nil {
		return fmt.Errorf("api settings errors: [invalid listen address %q]", s.API.Listen)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host must be set")
	}
	return nil
}
