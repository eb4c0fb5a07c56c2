// Package taskerrors contains the error types returned by the orchestrator, the pricing resolver
// and the backend. Every type carries enough context (job id, device id, bucket/key, cause) to
// diagnose a failure without querying the remote service again.
//
// Construction-time problems are reported as *ErrValidation. Everything after construction returns
// one of the other types, usually wrapped with fmt.Errorf; use errors.As or the Is* helpers to
// inspect them.
package taskerrors

import (
	"errors"
	"fmt"
)

// ErrValidation is returned when configuration or caller input is invalid.
type ErrValidation struct {
	// Field that failed validation, e.g. "storage.bucket"
	Field string
	// Optional message included with the error message
	Message string
}

func (err *ErrValidation) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("invalid %s", err.Field)
	}
	return fmt.Sprintf("invalid %s: %s", err.Field, err.Message)
}

// ErrRemoteService is returned whenever a collaborator call (compute service, price catalog)
// reports a failure.
type ErrRemoteService struct {
	// Operation that failed, e.g. "CreateTask"
	Op string
	// Target of the operation, e.g. a device id or task reference
	Target string
	Err    error
}

func (err *ErrRemoteService) Error() string {
	if err.Target == "" {
		return fmt.Sprintf("remote %s failed: %v", err.Op, err.Err)
	}
	return fmt.Sprintf("remote %s on %q failed: %v", err.Op, err.Target, err.Err)
}

func (err *ErrRemoteService) Unwrap() error {
	return err.Err
}

// ErrStorage is returned when a result object cannot be downloaded or decoded from storage.
type ErrStorage struct {
	Bucket string
	Key    string
	Err    error
}

func (err *ErrStorage) Error() string {
	return fmt.Sprintf("storage object %s/%s: %v", err.Bucket, err.Key, err.Err)
}

func (err *ErrStorage) Unwrap() error {
	return err.Err
}

// ErrFormat is returned when a result payload has an unknown or malformed shape.
type ErrFormat struct {
	Message string
	Err     error
}

func (err *ErrFormat) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("result format: %s: %v", err.Message, err.Err)
	}
	return fmt.Sprintf("result format: %s", err.Message)
}

func (err *ErrFormat) Unwrap() error {
	return err.Err
}

// ErrNotFound is returned whenever a job, batch or device isn't known.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string // Resource type, e.g., "job" or "batch"
	Value   string // Resource id
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("%s %q not found", err.Type, err.Value)
	} else {
		s = fmt.Sprintf("resource %q not found", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrConflict is returned when an operation is not valid for the current state of a resource,
// e.g. cancelling a job whose task already finished.
type ErrConflict struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrConflict) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("%s %q conflicts with current state", err.Type, err.Value)
	} else {
		s = fmt.Sprintf("resource %q conflicts with current state", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

func IsValidation(err error) bool {
	var e *ErrValidation
	return errors.As(err, &e)
}

func IsRemoteService(err error) bool {
	var e *ErrRemoteService
	return errors.As(err, &e)
}

func IsStorage(err error) bool {
	var e *ErrStorage
	return errors.As(err, &e)
}

func IsFormat(err error) bool {
	var e *ErrFormat
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ErrConflict
	return errors.As(err, &e)
}
