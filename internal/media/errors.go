package media

import (
	"fmt"

	"github.com/tphakala/birdhomie/internal/errors"
)

var (
	// ErrUnreadableMedia indicates the file could not be opened or its streams read.
	ErrUnreadableMedia = errors.NewStd("unreadable media")

	// ErrDecode indicates decoding failed after the file was opened.
	ErrDecode = errors.NewStd("media decode failed")
)

func unreadable(path, reason string, cause error) error {
	err := fmt.Errorf("%w: %s", ErrUnreadableMedia, reason)
	if cause != nil {
		err = fmt.Errorf("%w: %s: %w", ErrUnreadableMedia, reason, cause)
	}
	return errors.New(err).
		Component("media").
		Category(errors.CategoryMediaRead).
		Context("path", path).
		Build()
}

func decodeFailed(path, reason string, frame int, stderr string) error {
	b := errors.New(fmt.Errorf("%w: %s", ErrDecode, reason)).
		Component("media").
		Category(errors.CategoryMediaDecode).
		Context("path", path).
		Context("frame", frame)
	if stderr != "" {
		b = b.Context("stderr", stderr)
	}
	return b.Build()
}
