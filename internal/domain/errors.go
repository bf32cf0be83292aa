package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/roomly/backend/pkg/validator"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrDuplicateRequest  = errors.New("connection request already exists")
	ErrRejectionLimit    = errors.New("rejection limit reached")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrDownstream        = errors.New("record store failure")
	ErrTimeout           = errors.New("record store timed out")
	ErrInvalidPushToken  = errors.New("push token is no longer valid")

	ErrConnectionNotFound   = fmt.Errorf("connection %w", ErrNotFound)
	ErrConversationNotFound = fmt.Errorf("conversation %w", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrPostNotFound         = fmt.Errorf("post %w", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)
)

// ValidationError carries per-field details and matches ErrValidation
type ValidationError struct {
	Fields validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Fields.Error()
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a single-field validation error
func NewValidationError(field, message string) error {
	var fields validator.ValidationErrors
	fields.Add(field, message)
	return &ValidationError{Fields: fields}
}

func validate(v interface{}) error {
	if errs := validator.Struct(v); errs.HasErrors() {
		return &ValidationError{Fields: errs}
	}
	return nil
}

var known = []error{
	ErrValidation,
	ErrDuplicateRequest,
	ErrRejectionLimit,
	ErrNotFound,
	ErrForbidden,
	ErrInvalidTransition,
	ErrUnauthenticated,
	ErrDownstream,
	ErrTimeout,
}

// storeError classifies an error returned by a repository call
func storeError(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range known {
		if errors.Is(err, k) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrDownstream, err)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
