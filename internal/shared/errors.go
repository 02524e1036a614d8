package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Record store errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrRecordNotFound     = fmt.Errorf("record not found")
	ErrUnknownTable       = fmt.Errorf("unknown table")
	ErrUnknownService     = fmt.Errorf("unknown service")
	ErrUnknownView        = fmt.Errorf("unknown view")

	// Job history errors
	ErrJobNotFound    = fmt.Errorf("sync job not found")
	ErrNothingToRetry = fmt.Errorf("nothing to retry")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
