// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrDuplicatePayment = errors.New("duplicate payment: a dividend already exists for this asset and date")
	ErrUnknownAsset     = errors.New("unknown asset")
	ErrInvalidThreshold = errors.New("invalid threshold")
	ErrAlreadyTriggered = errors.New("alert already triggered")

	ErrAssetNotFound    = errors.New("asset not found")
	ErrDuplicateSymbol  = errors.New("asset symbol already exists")
	ErrDividendNotFound = errors.New("dividend not found")
	ErrAlertNotFound    = errors.New("alert not found")
	ErrAlertInactive    = errors.New("alert is inactive")
	ErrNotTriggered     = errors.New("alert has not been triggered")
	ErrDataNotFound     = errors.New("data not found")
	ErrDatabaseError    = errors.New("database error")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrInputValidation  = errors.New("input validation failed")
	ErrIntegrity        = errors.New("database integrity check failed")
	ErrBackup           = errors.New("backup failed")

	ErrInsufficientQuantity = errors.New("insufficient quantity")
)

// ConstraintError represents a storage constraint violation mapped onto a
// domain sentinel (ErrDuplicatePayment, ErrUnknownAsset, ...).
type ConstraintError struct {
	Table string
	Op    string
	Kind  error
	Err   error
}

func (e *ConstraintError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Table, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Kind)
}

// Unwrap exposes both the domain sentinel and the driver error.
func (e *ConstraintError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewConstraintError creates a new ConstraintError.
func NewConstraintError(table, op string, kind, err error) *ConstraintError {
	return &ConstraintError{
		Table: table,
		Op:    op,
		Kind:  kind,
		Err:   err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap lets callers match any validation failure with ErrInputValidation.
func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ThresholdError is returned when an alert threshold is rejected.
type ThresholdError struct {
	Value  string
	Reason string
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("invalid threshold %q: %s", e.Value, e.Reason)
}

func (e *ThresholdError) Unwrap() error {
	return ErrInvalidThreshold
}

// NewThresholdError creates a new ThresholdError.
func NewThresholdError(value, reason string) *ThresholdError {
	return &ThresholdError{Value: value, Reason: reason}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	ID       int64
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %d: %s: %v", e.DataType, e.ID, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %d: %s", e.DataType, e.ID, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType string, id int64, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		ID:       id,
		Message:  message,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single errors import.
func New(text string) error {
	return errors.New(text)
}
