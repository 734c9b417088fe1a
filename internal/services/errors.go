package services

import (
	"errors"
	"fmt"

	"vnjp-connect/internal/metrics"
	"vnjp-connect/internal/repository"
	"vnjp-connect/internal/validation"

	"github.com/rs/zerolog/log"
)

// Errors surfaced to callers. Handlers map them to HTTP statuses with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state for this transition")
	ErrNotAuthorized       = errors.New("not a participant of this intent")
	ErrSelfMatch           = errors.New("cannot accept your own intent")
	ErrNationalityConflict = errors.New("partner must have a different nationality")
	ErrEmptyContent        = errors.New("message content is empty")
	ErrAccessDenied        = errors.New("access to this channel denied")
	ErrDuplicateEvaluation = errors.New("evaluation already submitted")
	ErrInvalidScore        = errors.New("score must be between 1 and 10")
	ErrValidation          = errors.New("validation failed")
)

// notFound maps a repository miss to ErrNotFound, keeping the detail.
func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// reject logs and counts a refused operation, returning err unchanged.
func reject(operation, reason string, err error, fields map[string]string) error {
	event := log.Warn().Str("operation", operation).Str("reason", reason)
	for k, v := range fields {
		event = event.Str(k, v)
	}
	event.Msg("Operation rejected")
	metrics.RecordRejection(operation, reason)
	return err
}

func invalid(operation string, verr *validation.RequestValidationError) error {
	return reject(operation, "validation", fmt.Errorf("%w: %s", ErrValidation, verr.Error()), nil)
}
