package logger

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "time/tzdata" // timezone names must resolve on minimal container images
)

const dirPermissions = 0o755

// route is where one module's records go and the lowest level it emits
type route struct {
	handler slog.Handler
	level   slog.Level
}

// CentralLogger owns the log files and hands out module loggers. Modules
// without their own output share the console and the main log file.
type CentralLogger struct {
	mu       sync.RWMutex
	fallback route
	routes   map[string]route
	sinks    *sinkSet
}

var (
	global   *CentralLogger
	globalMu sync.Mutex
)

// SetGlobal installs the process-wide CentralLogger
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	global = cl
	globalMu.Unlock()
}

// Global returns the process-wide CentralLogger, or a console logger at
// info level until SetGlobal has run
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = &CentralLogger{
			fallback: route{handler: newTextHandler(os.Stdout, slog.LevelInfo), level: slog.LevelInfo},
			sinks:    newSinkSet(0),
		}
	}
	return global
}

// NewCentralLogger opens every file named by cfg. Missing sections are
// filled with defaults in place.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		routes: make(map[string]route),
		sinks:  newSinkSet(sinkFlushInterval),
	}
	if err := cl.build(cfg, tz); err != nil {
		_ = cl.sinks.close()
		return nil, err
	}
	return cl, nil
}

func (cl *CentralLogger) build(cfg *LoggingConfig, tz *time.Location) error {
	defaultLevel := parseLogLevel(cfg.DefaultLevel)

	var console slog.Handler
	if cfg.Console.Enabled {
		console = newTextHandler(os.Stdout, parseLogLevel(cfg.Console.Level))
	}

	var shared []slog.Handler
	if console != nil {
		shared = append(shared, console)
	}
	if cfg.FileOutput.Enabled {
		mainSink, err := cl.sinks.get(cfg.FileOutput.Path)
		if err != nil {
			return err
		}
		shared = append(shared, newJSONHandler(mainSink, parseLogLevel(cfg.FileOutput.Level), tz))
	}
	if len(shared) == 0 {
		shared = append(shared, newTextHandler(os.Stdout, defaultLevel))
	}
	cl.fallback = route{handler: tee(shared...), level: defaultLevel}

	for name, lvl := range cfg.ModuleLevels {
		cl.routes[name] = route{handler: cl.fallback.handler, level: parseLogLevel(lvl)}
	}

	for name, out := range cfg.ModuleOutputs {
		if !out.Enabled {
			continue
		}
		level := defaultLevel
		if r, ok := cl.routes[name]; ok {
			level = r.level
		}
		if out.Level != "" {
			level = parseLogLevel(out.Level)
		}

		sink, err := cl.sinks.get(out.FilePath)
		if err != nil {
			return fmt.Errorf("module %s: %w", name, err)
		}
		handler := newJSONHandler(sink, level, tz)
		if out.ConsoleAlso && console != nil {
			handler = tee(handler, newTextHandler(os.Stdout, level))
		}
		cl.routes[name] = route{handler: handler, level: level}
	}
	return nil
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

// Module returns the logger for a top-level module name
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	r, ok := cl.routes[name]
	if !ok {
		r = cl.fallback
	}
	cl.mu.RUnlock()

	return &moduleLogger{name: name, out: slog.New(r.handler), min: r.level}
}

// Flush hands buffered records to the OS without fsync
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.sinks.flush()
}

// Close flushes, syncs and closes every log file
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.sinks.close()
}
