package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Task struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// NormalizeTitle is the form titles are compared in when checking for duplicates.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
