package middleware

import (
	"errors"

	"github.com/google/uuid"
)

// ValidateThreadID validates a thread ID.
func ValidateThreadID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid thread ID format")
	}
	return nil
}
