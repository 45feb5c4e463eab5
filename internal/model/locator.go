package model

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ju4n97/estimator/internal/power"
)

// Locator computes where the artifact for a source and output type lives.
type Locator struct {
	downloadDir string
}

// NewLocator creates a locator rooted at downloadDir.
func NewLocator(downloadDir string) *Locator {
	return &Locator{downloadDir: downloadDir}
}

// Path returns <download dir>/<source>/<output type>. It never touches the filesystem.
func (l *Locator) Path(source power.EnergySource, outputType power.OutputType) string {
	return filepath.Join(l.downloadDir, string(source), string(outputType))
}

// Root returns the download directory.
func (l *Locator) Root() string {
	return l.downloadDir
}

// Check reports an error wrapping ErrInvalidKey unless source and
// outputType are single path segments whose Path lies under the download
// directory.
func (l *Locator) Check(source power.EnergySource, outputType power.OutputType) error {
	for _, segment := range []string{string(source), string(outputType)} {
		if segment == "" || segment == "." || segment == ".." || strings.ContainsAny(segment, `/\`+"\x00") {
			return fmt.Errorf("%w: %q", ErrInvalidKey, segment)
		}
	}

	rel, err := filepath.Rel(l.downloadDir, l.Path(source, outputType))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s escapes %s", ErrInvalidKey, source, l.downloadDir)
	}

	return nil
}
