package util

import "github.com/google/uuid"

// NewDocumentKey returns a fresh ArangoDB-safe document key.
func NewDocumentKey() string {
	return uuid.NewString()
}
