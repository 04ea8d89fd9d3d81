package api

import (
	"fmt"

	"github.com/google/uuid"
)

// Error is the JSON error body returned by all API endpoints
type Error struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ParseUUID validates and normalizes a UUID string from a request path
func ParseUUID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return id.String(), nil
}
