package events

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// sender is the part of the shoutrrr router the notifier uses
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// Notifier sends failed-file events to shoutrrr services
type Notifier struct {
	sender sender
}

// NewNotifier creates a notifier for the given shoutrrr URLs
func NewNotifier(urls []string, timeout time.Duration) (*Notifier, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component("events").
			Category(errors.CategoryConfiguration).
			Build()
	}
	router, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// the error may echo the URL including its token
		return nil, errors.Newf("failed to create notification sender: %s", logger.RedactSensitiveData(err.Error())).
			Component("events").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout > 0 {
		router.Timeout = timeout
	}
	router.SetLogger(log.New(io.Discard, "", 0))
	return &Notifier{sender: router}, nil
}

func (n *Notifier) Name() string { return "notify" }

// Consume ignores everything except FileFailed
func (n *Notifier) Consume(_ context.Context, e Event) error {
	if e.Type != FileFailed {
		return nil
	}
	params := stypes.Params{}
	params.SetTitle("birdhomie: file processing failed")

	var msg strings.Builder
	fmt.Fprintf(&msg, "File %d failed", e.FileID)
	if e.Path != "" {
		fmt.Fprintf(&msg, " (%s)", e.Path)
	}
	if e.ErrorCategory != "" {
		fmt.Fprintf(&msg, " [%s]", e.ErrorCategory)
	}
	if e.Error != "" {
		fmt.Fprintf(&msg, ": %s", e.Error)
	}

	var failed []error
	for _, err := range n.sender.Send(msg.String(), &params) {
		if err != nil {
			failed = append(failed, fmt.Errorf("%s", logger.RedactSensitiveData(err.Error())))
		}
	}
	if len(failed) > 0 {
		return errors.New(errors.Join(failed...)).
			Component("events").
			Category(errors.CategoryNotification).
			Context("failed_services", len(failed)).
			Build()
	}
	return nil
}
