package database

import "github.com/google/uuid"

// generateID returns a random (version 4) UUID string
func generateID() string {
	return uuid.NewString()
}
