package ingress

import "errors"

// Errors surfaced by vhost generation and proxy control.
var (
	// ErrConfigWrite wraps filesystem failures while writing a vhost file.
	ErrConfigWrite = errors.New("ingress: config write failed")
	// ErrComposeFileMissing indicates the proxy's declarative definition is
	// absent, so the start path cannot run.
	ErrComposeFileMissing = errors.New("ingress: compose file missing")
	// ErrReloadFailed indicates the start or reload command failed.
	ErrReloadFailed = errors.New("ingress: proxy reload failed")
)
