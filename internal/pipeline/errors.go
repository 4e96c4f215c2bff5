package pipeline

import (
	"github.com/tphakala/birdhomie/internal/errors"
)

// ErrFileNotFoundOnDisk is returned for files whose path no longer exists.
// Such files keep their status.
var ErrFileNotFoundOnDisk = errors.NewStd("file not found on disk")

func missingFile(path string, cause error) error {
	return errors.New(ErrFileNotFoundOnDisk).
		Component("pipeline").
		Category(errors.CategoryNotFound).
		Context("file_path", path).
		Context("cause", cause.Error()).
		Build()
}

// isBatchFatal reports whether err must stop the whole batch
func isBatchFatal(err error) bool {
	return errors.IsCategory(err, errors.CategoryModelLoad)
}
