package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSnapshot is returned when a snapshot collection is not object-shaped.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	// ErrInvalidOptions is returned when merge options are malformed.
	ErrInvalidOptions = errors.New("invalid merge options")
	// ErrBackupFailed is returned when the pre-apply backup cannot be written.
	ErrBackupFailed = errors.New("backup failed")
	// ErrIntegrity is returned when written collections do not match the merge output.
	ErrIntegrity = errors.New("integrity check failed")
	// ErrNoBackup is returned by Rollback when no backup exists.
	ErrNoBackup = errors.New("no backup available")
	// ErrUnknownConflict is returned by the resolver for ids outside the diff.
	ErrUnknownConflict = errors.New("unknown conflict")
	// ErrInvalidChoice is returned for choices other than local, cloud or merge.
	ErrInvalidChoice = errors.New("invalid choice")
	// ErrInvalidTransition is returned when a session step is not allowed.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// InputError describes malformed caller input.
type InputError struct {
	Collection CollectionName
	Reason     string
	Err        error
}

func (e *InputError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", e.Err, e.Collection, e.Reason)
}

func (e *InputError) Unwrap() error {
	return e.Err
}
