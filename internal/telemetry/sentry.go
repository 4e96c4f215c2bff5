// Package telemetry reports categorized errors to Sentry. Reporting is
// opt-in and every event passes a privacy filter before it leaves the host.
package telemetry

import (
	"fmt"
	"regexp"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/birdhomie/internal/conf"
	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// Option adjusts the Sentry client options
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport, used by tests
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// InitSentry initializes the Sentry SDK when enabled in settings and routes
// EnhancedError reports to it. It returns false when telemetry stays off.
func InitSentry(settings *conf.Settings, opts ...Option) (bool, error) {
	log := GetLogger()
	if !settings.Sentry.Enabled || settings.Sentry.DSN == "" {
		log.Debug("sentry telemetry disabled")
		errors.SetTelemetryReporter(nil)
		return false, nil
	}

	options := sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          fmt.Sprintf("birdhomie@%s", settings.Version),
		BeforeSend:       beforeSend,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if err := sentry.Init(options); err != nil {
		return false, errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetContext("application", map[string]any{
			"name":    "birdhomie",
			"version": settings.Version,
		})
	})

	errors.SetPrivacyScrubber(scrub)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	log.Info("sentry telemetry enabled", logger.String("release", options.Release))
	return true, nil
}

// beforeSend strips host identifying data from every event
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	event.Message = scrub(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = scrub(event.Exception[i].Value)
	}
	return event
}

var (
	urlUserInfo = regexp.MustCompile(`(\w+://)[^/@\s]+@`)
	urlQuery    = regexp.MustCompile(`(\w+://[^?\s]+)\?\S*`)
)

// scrub removes URL credentials, query strings and key-like values
func scrub(s string) string {
	s = urlUserInfo.ReplaceAllString(s, "$1[REDACTED]@")
	s = urlQuery.ReplaceAllString(s, "$1?[REDACTED]")
	return logger.RedactSensitiveData(s)
}

// Flush waits for queued events to be sent
func Flush(timeout time.Duration) {
	if !sentry.Flush(timeout) {
		GetLogger().Warn("sentry flush timed out", logger.Duration("timeout", timeout))
	}
}
