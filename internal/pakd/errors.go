package pakd

import (
	"errors"
	"fmt"
)

// NotFoundError reports that a package exists in neither the local
// installation state nor the remote catalog. It is the terminal error state
// of a record build.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("package %q not found", e.Name)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ChangeFailedError reports that a change reached its terminal state
// carrying an error.
type ChangeFailedError struct {
	ChangeID string
	Reason   string
}

func (e *ChangeFailedError) Error() string {
	return fmt.Sprintf("change %s failed: %s", e.ChangeID, e.Reason)
}

// IsChangeFailed reports whether err is (or wraps) a ChangeFailedError.
func IsChangeFailed(err error) bool {
	var cf *ChangeFailedError
	return errors.As(err, &cf)
}

// DaemonError is any other daemon failure: transport errors, rejected
// requests, malformed responses. It propagates unchanged to the caller.
type DaemonError struct {
	Verb       string
	StatusCode int
	Message    string
	Cause      error
}

func (e *DaemonError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("daemon %s: %s: %v", e.Verb, e.Message, e.Cause)
	}
	return fmt.Sprintf("daemon %s: %s", e.Verb, e.Message)
}

func (e *DaemonError) Unwrap() error {
	return e.Cause
}
