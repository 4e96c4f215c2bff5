package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/spf13/afero"

	"github.com/tphakala/birdhomie/internal/errors"
)

const hashChunkSize = 8192

// hashFile returns the hex SHA-256 of the file at path
func hashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.FileError(err, path)
	}
	defer f.Close()

	h := sha256.New()
	// hide WriterTo so the copy goes through the fixed-size buffer
	if _, err := io.CopyBuffer(h, struct{ io.Reader }{f}, make([]byte, hashChunkSize)); err != nil {
		return "", errors.FileError(err, path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
