package services

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	ReasonTitleRequired  = "title required"
	ReasonDuplicateTitle = "duplicate title"
)

// ValidationError reports input the service refuses to store.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.ID)
}
