package servicecall

import (
	"errors"

	"github.com/florianilch/servicecall/internal/transport"
)

var (
	// ErrUnknownToken reports a token id that is not (or no longer) in the registry.
	ErrUnknownToken = errors.New("invalid or unknown token reference")

	// ErrMalformedHeaders reports header JSON that is not a flat string map.
	ErrMalformedHeaders = errors.New("malformed headers")

	// ErrInvalidURL reports a missing or non-HTTP target URL.
	ErrInvalidURL = errors.New("invalid url")

	// ErrUnsupportedMethod is returned for methods other than GET, POST and PUT,
	// or for uploads not using POST or PUT.
	ErrUnsupportedMethod = transport.ErrUnsupportedMethod

	// ErrLocalIO wraps local filesystem failures during uploads and downloads.
	ErrLocalIO = transport.ErrLocalIO
)
