package source

import "errors"

// Error definitions for the source package.
var (
	ErrUnavailable = errors.New("no model available")
)
