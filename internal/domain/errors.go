package domain

import "errors"

// ErrAlreadyRunning indicates a second update run was requested while one
// is still streaming status.
var ErrAlreadyRunning = errors.New("an update run is already in progress")

// ErrNoContentLength indicates the file server did not report a size for
// a manifest entry.
var ErrNoContentLength = errors.New("server did not report a file size")
