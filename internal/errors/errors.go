package appErrors

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a keyed lookup finds no row.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Helper constructor
func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError rejects a request before anything is persisted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConflictError signals a unique constraint violation.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func NewConflict(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// RenderError means a template document could not be rendered.
type RenderError struct {
	TemplateID string
	Err        error
}

func (e *RenderError) Error() string {
	if e.TemplateID == "" {
		return fmt.Sprintf("render template: %v", e.Err)
	}
	return fmt.Sprintf("render template %s: %v", e.TemplateID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// UpstreamError means an external service (LINE, the scheduler) refused or failed a request.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s API Error: %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s request failed", e.Service)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsRender(err error) bool {
	var target *RenderError
	return errors.As(err, &target)
}

func IsUpstream(err error) bool {
	var target *UpstreamError
	return errors.As(err, &target)
}
