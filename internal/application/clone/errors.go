package clone

import (
	"errors"
	"fmt"
)

// Errors returned by the clone stages.
var (
	// ErrStageAborted is matched by every error that stops a stage before it
	// produced its artifacts.
	ErrStageAborted = errors.New("clone: stage aborted")
	// ErrMissingIdentifier is returned when a record lacks an id the stage
	// needs to continue.
	ErrMissingIdentifier = errors.New("clone: missing identifier")
	// ErrCredentialMismatch is returned when the ops and vendor tokens do not
	// see the agreement the way their roles should.
	ErrCredentialMismatch = errors.New("clone: credential mismatch")
	// ErrAgreementStatus is returned when the agreement is neither Active nor
	// Terminated.
	ErrAgreementStatus = errors.New("clone: agreement status does not allow cloning")
	// ErrTunnelRequired is returned when platform-sync mode runs without a
	// tunnel client.
	ErrTunnelRequired = errors.New("clone: platform-sync mode requires the tunnel configuration")
)

// abortError marks err as having aborted the stage while keeping the cause
// reachable through errors.Is.
type abortError struct {
	err error
}

func (e *abortError) Error() string {
	return e.err.Error()
}

func (e *abortError) Unwrap() []error {
	return []error{ErrStageAborted, e.err}
}

func abort(err error) error {
	if err == nil || errors.Is(err, ErrStageAborted) {
		return err
	}
	return &abortError{err: err}
}

func abortf(format string, args ...any) error {
	return abort(fmt.Errorf(format, args...))
}

func missing(what, where string) error {
	return abort(fmt.Errorf("%w: %s not found in %s", ErrMissingIdentifier, what, where))
}
