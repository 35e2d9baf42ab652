package entities

import (
	"github.com/google/uuid"
)

// generateID creates a unique identifier for conversations and messages
func generateID() string {
	return uuid.NewString()
}
