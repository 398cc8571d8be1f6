// Package errs provides the error taxonomy of the reconciliation engine.
// Per-item failures (connector, persistence) are collected into a run
// outcome; only configuration errors abort a run.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a requested record, account or integration does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnreachable indicates that a supplier or channel could not be reached.
	ErrUnreachable = errors.New("connector unreachable")

	// ErrRateLimited indicates that a supplier or channel refused the call because of its rate limit.
	ErrRateLimited = errors.New("rate limited")

	// ErrRejected indicates that the remote side rejected the payload.
	ErrRejected = errors.New("rejected")

	// ErrInvalidConfig indicates a missing or invalid sync configuration.
	ErrInvalidConfig = errors.New("invalid sync config")

	// ErrSyncDisabled indicates a run was requested for an account with sync switched off.
	ErrSyncDisabled = errors.New("sync disabled")

	// ErrMalformedRecord indicates a record lacks a scalar the scorer needs.
	ErrMalformedRecord = errors.New("malformed record")
)

// ScoringError marks a record field that could not be compared.
// The scorer falls back to a zero contribution; it is never fatal.
type ScoringError struct {
	RecordID string
	Field    string
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("record %s: field %s cannot be scored", e.RecordID, e.Field)
}

func (e *ScoringError) Is(target error) bool { return target == ErrMalformedRecord }

// ConnectorError is a failed call to a supplier or channel connector.
type ConnectorError struct {
	Connector string // integration id
	Op        string // fetchStock, fetchPrice, push
	Ref       string // product reference the call was about
	Kind      error  // ErrUnreachable, ErrRateLimited or ErrRejected
	Err       error
}

func (e *ConnectorError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Connector, e.Op)
	if e.Ref != "" {
		msg += " " + e.Ref
	}
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectorError) Unwrap() error { return e.Err }

func (e *ConnectorError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// NewConnectorError builds a ConnectorError. A nil kind defaults to ErrUnreachable.
func NewConnectorError(connector, op, ref string, kind, err error) *ConnectorError {
	if kind == nil {
		kind = ErrUnreachable
	}
	return &ConnectorError{Connector: connector, Op: op, Ref: ref, Kind: kind, Err: err}
}

// PersistenceError is a failed catalogue or audit write.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("persist %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func NewPersistenceError(op, id string, err error) *PersistenceError {
	return &PersistenceError{Op: op, ID: id, Err: err}
}

// ConfigError is a missing or invalid SyncConfig; fatal for the run that hit it.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func NewConfigError(field, message string, err error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Err: err}
}

// NotFoundError is returned by stores for unknown ids.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConnector checks if an error came from a connector call.
func IsConnector(err error) bool {
	var ce *ConnectorError
	return errors.As(err, &ce)
}

// IsPersistence checks if an error came from a store write.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsConfig checks if an error is a configuration error.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsRetryable reports whether a later run may succeed without intervention.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrRateLimited)
}
