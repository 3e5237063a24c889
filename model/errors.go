package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/siherrmann/graphrag/helper"
)

// Error kinds. Every error returned by the ingestion and query paths wraps
// exactly one of them; test with errors.Is.
var (
	ErrExtraction = errors.New("extraction error")
	ErrEmbedding  = errors.New("embedding error")
	ErrStorage    = errors.New("storage error")
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
)

var kinds = []error{ErrExtraction, ErrEmbedding, ErrStorage, ErrValidation, ErrNotFound}

// NewKindError wraps err with the failing operation and tags it with kind.
// If err already carries a kind it keeps it and is only annotated with the operation.
func NewKindError(kind error, operation string, err error) error {
	if err == nil {
		err = kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return helper.NewError(operation, err)
		}
	}
	return fmt.Errorf("%w: %w", kind, helper.NewError(operation, err))
}

// IsRetryable reports whether a failed request may succeed when repeated.
// Storage and embedding failures are retryable, and so is any deadline.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		return false
	}
	return errors.Is(err, ErrStorage) ||
		errors.Is(err, ErrEmbedding) ||
		errors.Is(err, context.DeadlineExceeded)
}
