package models

import "github.com/google/uuid"

// NewID returns a time-ordered identifier for cases, work items, documents and answers.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
