package service

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
)

// ErrInvalidJob rejects a submission. No job is created.
type ErrInvalidJob struct {
	error
	Fields []analysis.FieldError
}

func NewErrInvalidJob(err error) *ErrInvalidJob {
	e := &ErrInvalidJob{error: err}
	if verr, ok := err.(*analysis.ValidationError); ok {
		e.Fields = verr.Fields
	}
	return e
}

func NewErrInvalidField(field, message string) *ErrInvalidJob {
	return NewErrInvalidJob(analysis.NewValidationError(analysis.FieldError{Field: field, Message: message}))
}

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job")
}

type ErrJobNotCancellable struct {
	error
	Status analysis.Status
}

func NewErrJobNotCancellable(id uuid.UUID, status analysis.Status) *ErrJobNotCancellable {
	return &ErrJobNotCancellable{error: fmt.Errorf("job %s is %s and cannot be cancelled", id, status), Status: status}
}

// ErrServiceUnavailable is returned once the pipeline is shutting down.
type ErrServiceUnavailable struct {
	error
}

func NewErrServiceUnavailable() *ErrServiceUnavailable {
	return &ErrServiceUnavailable{fmt.Errorf("analysis pipeline is shutting down")}
}
