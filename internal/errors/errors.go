// Package errors provides centralized error handling with optional telemetry integration
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

// CategorizedError is an interface for errors that can specify their own category
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryMediaRead      ErrorCategory = "media-read"
	CategoryMediaDecode    ErrorCategory = "media-decode"
	CategoryModelLoad      ErrorCategory = "model-loading"
	CategoryInference      ErrorCategory = "model-inference"
	CategoryClassification ErrorCategory = "classification"
	CategoryEnrichment     ErrorCategory = "enrichment"
	CategoryDatabase       ErrorCategory = "database"
	CategoryNotFound       ErrorCategory = "not-found"
	CategoryValidation     ErrorCategory = "validation"
	CategoryFileIO         ErrorCategory = "file-io"
	CategoryNetwork        ErrorCategory = "network"
	CategoryHTTP           ErrorCategory = "http-request"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryLock           ErrorCategory = "task-lock"
	CategoryMQTTConnection ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish    ErrorCategory = "mqtt-publish"
	CategoryNotification   ErrorCategory = "notification"
	CategoryGeneric        ErrorCategory = "generic"
	CategoryConflict       ErrorCategory = "conflict"
	CategoryProcessing     ErrorCategory = "processing"
	CategoryState          ErrorCategory = "state"
	CategoryWorker         ErrorCategory = "worker-pool"

	CategoryCommandExecution ErrorCategory = "command-execution" // External command execution
	CategoryTimeout          ErrorCategory = "timeout"           // Operation timeouts
	CategoryCancellation     ErrorCategory = "cancellation"      // Cancelled operations
	CategoryRetry            ErrorCategory = "retry"             // Retry-related errors
	CategoryIntegration      ErrorCategory = "integration"       // Third-party integrations
)

// Priority constants for error prioritization
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with additional context and metadata
type EnhancedError struct {
	Err       error          // Original error
	component string         // Component where error occurred (lazily detected)
	Category  ErrorCategory  // Error category for better grouping
	Priority  string         // Explicit priority override (optional)
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
	reported  bool           // Whether telemetry has been sent
	detected  bool           // Whether component has been auto-detected
	mu        sync.RWMutex
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another EnhancedError by category, anything else through the wrapped chain
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return Is(ee.Err, target)
}

// GetComponent returns the component name, detecting it lazily if needed
func (ee *EnhancedError) GetComponent() string {
	ee.mu.RLock()
	if ee.detected || ee.component != "" {
		component := ee.component
		ee.mu.RUnlock()
		return component
	}
	ee.mu.RUnlock()

	ee.mu.Lock()
	defer ee.mu.Unlock()
	if ee.component == "" && !ee.detected {
		ee.component = detectComponent()
		ee.detected = true
		if ee.component == "" {
			ee.component = ComponentUnknown
		}
	}
	return ee.component
}

// GetCategory returns the error category
func (ee *EnhancedError) GetCategory() ErrorCategory {
	return ee.Category
}

// GetPriority returns the explicit priority, empty if none was set
func (ee *EnhancedError) GetPriority() string {
	return ee.Priority
}

// GetContext returns a copy of the context map
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// GetTimestamp returns when the error was built
func (ee *EnhancedError) GetTimestamp() time.Time {
	return ee.Timestamp
}

// GetMessage returns the underlying error message
func (ee *EnhancedError) GetMessage() string {
	return ee.Err.Error()
}

// IsReported reports whether telemetry has already been sent for this error
func (ee *EnhancedError) IsReported() bool {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	return ee.reported
}

// MarkReported marks the error as sent to telemetry
func (ee *EnhancedError) MarkReported() {
	ee.mu.Lock()
	ee.reported = true
	ee.mu.Unlock()
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New creates a new error builder around err
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{
		err:     err,
		context: make(map[string]any),
	}
}

// Newf creates a new error builder with a formatted message
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority sets an explicit priority
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	eb.priority = priority
	return eb
}

// Context adds a context key/value pair
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// FileContext adds the file path and size to the context
func (eb *ErrorBuilder) FileContext(path string, size int64) *ErrorBuilder {
	eb.context["file_path"] = path
	if size >= 0 {
		eb.context["file_size"] = size
	}
	return eb
}

// ModelContext adds model name and endpoint to the context
func (eb *ErrorBuilder) ModelContext(model, endpoint string) *ErrorBuilder {
	eb.context["model"] = model
	if endpoint != "" {
		eb.context["endpoint"] = endpoint
	}
	return eb
}

// NetworkContext adds the request URL and timeout to the context
func (eb *ErrorBuilder) NetworkContext(url string, timeout time.Duration) *ErrorBuilder {
	eb.context["url"] = url
	eb.context["timeout_seconds"] = timeout.Seconds()
	return eb
}

// Timing records an operation name and its duration
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	eb.context["operation"] = operation
	eb.context["duration_ms"] = duration.Milliseconds()
	return eb
}

// Build creates the EnhancedError and notifies telemetry and hooks
func (eb *ErrorBuilder) Build() *EnhancedError {
	if eb.err == nil {
		eb.err = stderrors.New("unknown error")
	}

	if eb.component == "" {
		eb.component = detectComponent()
		if eb.component == "" {
			eb.component = ComponentUnknown
		}
	}
	if eb.category == "" {
		eb.category = detectCategory(eb.err, eb.component)
	}

	ee := &EnhancedError{
		Err:       eb.err,
		component: eb.component,
		Category:  eb.category,
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
		detected:  true,
	}

	if hasActiveReporting.Load() {
		reportToTelemetry(ee)
		runHooks(ee)
	}

	return ee
}

var (
	componentRegistry   = make(map[string]string)
	componentRegistryMu sync.RWMutex
)

// RegisterComponent maps a package path fragment to a component name.
// Packages call this from init so that errors built without an explicit
// Component are still attributed correctly.
func RegisterComponent(pathFragment, component string) {
	componentRegistryMu.Lock()
	componentRegistry[pathFragment] = component
	componentRegistryMu.Unlock()
}

func detectComponent() string {
	pcs := make([]uintptr, 12)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	componentRegistryMu.RLock()
	defer componentRegistryMu.RUnlock()

	for {
		frame, more := frames.Next()
		if !strings.HasSuffix(frame.File, "/internal/errors/errors.go") {
			for fragment, component := range componentRegistry {
				if strings.Contains(frame.File, fragment) || strings.Contains(frame.Function, fragment) {
					return component
				}
			}
		}
		if !more {
			break
		}
	}
	return ""
}

func detectCategory(err error, component string) ErrorCategory {
	var ce CategorizedError
	if stderrors.As(err, &ce) {
		return ce.ErrorCategory()
	}
	var ee *EnhancedError
	if stderrors.As(err, &ee) && ee.Category != "" {
		return ee.Category
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context canceled"):
		return CategoryCancellation
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return CategoryTimeout
	case strings.Contains(msg, "no such file"), strings.Contains(msg, "not found"):
		return CategoryNotFound
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return CategoryNetwork
	case strings.Contains(msg, "sql"), strings.Contains(msg, "database"):
		return CategoryDatabase
	}

	switch component {
	case "datastore":
		return CategoryDatabase
	case "media":
		return CategoryMediaRead
	case "taxonomy":
		return CategoryEnrichment
	case "inference":
		return CategoryInference
	}
	return CategoryGeneric
}

// Wrap wraps err with a message, keeping category and component of an existing EnhancedError
func Wrap(err error, format string, args ...any) *EnhancedError {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	b := New(wrapped)
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		b.Category(ee.Category).Component(ee.GetComponent())
		for k, v := range ee.GetContext() {
			b.Context(k, v)
		}
	}
	return b.Build()
}

// ValidationError creates a validation error with the given message
func ValidationError(message string) *EnhancedError {
	return New(stderrors.New(message)).Category(CategoryValidation).Build()
}

// FileError creates a file-io error for path
func FileError(err error, path string) *EnhancedError {
	return New(err).Category(CategoryFileIO).FileContext(path, -1).Build()
}

// Standard library passthroughs

// NewStd creates a plain error, used for sentinels
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling Unwrap on err
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory reports whether err carries the given category
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.Category == category
	}
	var ce CategorizedError
	if stderrors.As(err, &ce) {
		return ce.ErrorCategory() == category
	}
	return false
}

// CategoryOf returns the category of err, or CategoryGeneric
func CategoryOf(err error) ErrorCategory {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.Category
	}
	var ce CategorizedError
	if stderrors.As(err, &ce) {
		return ce.ErrorCategory()
	}
	return CategoryGeneric
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

// ErrorHook is called for every built error while reporting is active
type ErrorHook func(ee *EnhancedError)

var (
	hooksMu            sync.RWMutex
	errorHooks         []ErrorHook
	hasActiveReporting atomic.Bool
)

// AddErrorHook registers a hook called for every built error
func AddErrorHook(hook ErrorHook) {
	hooksMu.Lock()
	errorHooks = append(errorHooks, hook)
	hooksMu.Unlock()
	updateActiveReporting()
}

// ClearErrorHooks removes all hooks
func ClearErrorHooks() {
	hooksMu.Lock()
	errorHooks = nil
	hooksMu.Unlock()
	updateActiveReporting()
}

func runHooks(ee *EnhancedError) {
	hooksMu.RLock()
	hooks := errorHooks
	hooksMu.RUnlock()
	for _, h := range hooks {
		h(ee)
	}
}

func updateActiveReporting() {
	hooksMu.RLock()
	n := len(errorHooks)
	hooksMu.RUnlock()
	hasActiveReporting.Store(n > 0 || currentReporter() != nil)
}
