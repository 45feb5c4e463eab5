package power

import "errors"

// Error definitions for the power package.
var (
	ErrMalformedRequest      = errors.New("malformed request")
	ErrUnsupportedOutputType = errors.New("output type is not supported")
)
