package server

import "errors"

// Domain errors for the server package.
var (
	// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown
	// or context cancellation.
	ErrServerClosed = errors.New("server: closed")

	// ErrAlreadyServing is returned when Serve is called twice.
	ErrAlreadyServing = errors.New("server: already serving")

	// ErrWriteFailed wraps a failure to write a reply frame.
	ErrWriteFailed = errors.New("server: reply write failed")
)
