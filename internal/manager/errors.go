package manager

import (
	"net/http"

	"github.com/pkg/errors"
)

// tooBusyError signals queue timeout/overflow or a draining network, for 429 mapping.
type tooBusyError struct{ network string }

func (e tooBusyError) Error() string   { return "too busy: " + e.network }
func (e tooBusyError) StatusCode() int { return http.StatusTooManyRequests }

// ErrTooBusy returns the backpressure error for network.
func ErrTooBusy(network string) error { return tooBusyError{network: network} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var tb tooBusyError
	return errors.As(err, &tb)
}

type networkNotFoundError struct{ name string }

func (e networkNotFoundError) Error() string   { return "network not found: " + e.name }
func (e networkNotFoundError) StatusCode() int { return http.StatusNotFound }

// ErrNetworkNotFound returns an error when a requested network is not present in the registry.
func ErrNetworkNotFound(name string) error { return networkNotFoundError{name: name} }

// IsNetworkNotFound reports whether the error indicates a missing network.
func IsNetworkNotFound(err error) bool {
	var nf networkNotFoundError
	return errors.As(err, &nf)
}

type opNotFoundError struct{ id string }

func (e opNotFoundError) Error() string   { return "operation not found: " + e.id }
func (e opNotFoundError) StatusCode() int { return http.StatusNotFound }

// IsOpNotFound reports whether err refers to an unknown or expired async operation.
func IsOpNotFound(err error) bool {
	var nf opNotFoundError
	return errors.As(err, &nf)
}

// dependencyUnavailableError signals that the configured device has no
// registered backend, so the HTTP layer can return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string   { return e.msg }
func (e dependencyUnavailableError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing backend.
func IsDependencyUnavailable(err error) bool {
	var du dependencyUnavailableError
	return errors.As(err, &du)
}
