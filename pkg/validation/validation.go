// Package validation checks documents against the forms they answer.
package validation

import (
	"context"
)

// Result is the outcome of validating a document. Missing lists the offending question
// ids in form order.
type Result struct {
	OK      bool     `json:"ok"`
	Missing []string `json:"missing,omitempty"`
}

// Service is the form validation service consulted before a work item is completed.
type Service interface {
	ValidateDocument(ctx context.Context, documentID string) (Result, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, documentID string) (Result, error)

func (f ServiceFunc) ValidateDocument(ctx context.Context, documentID string) (Result, error) {
	return f(ctx, documentID)
}
