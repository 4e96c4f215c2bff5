package conf

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/klauspost/cpuid/v2"

	"github.com/tphakala/birdhomie/internal/errors"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// When one of them already holds a config file only that directory is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	configPaths := []string{
		".",
		filepath.Join(homeDir, ".config", "birdhomie"),
		"/etc/birdhomie",
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}
	return configPaths, nil
}

// EffectiveWorkers resolves processor.workers; 0 means one worker per
// physical core, leaving one core for ffmpeg decoding
func (p *ProcessorSettings) EffectiveWorkers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	cores := cpuid.CPU.PhysicalCores
	if cores <= 0 {
		cores = runtime.NumCPU()
	}
	return max(1, cores-1)
}

// ValidateToolPath resolves an external binary such as ffmpeg, either as an
// explicit path or by name on PATH
func ValidateToolPath(configured string) (string, error) {
	if configured == "" {
		return "", errors.Newf("tool path is empty").Category(errors.CategoryConfiguration).Build()
	}
	path, err := exec.LookPath(configured)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("tool", configured).
			Build()
	}
	return path, nil
}
