package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns prefix_<32 hex digits> from a random UUID.
func NewID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return hex
	}
	return prefix + "_" + hex
}
