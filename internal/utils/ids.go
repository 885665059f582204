package utils

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GenerateNanoID returns a URL-safe random identifier of the given length.
func GenerateNanoID(length int) string {
	id, _ := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", length)
	return id
}

// GenerateNanoIDWithPrefix returns an identifier like "sync_x7f2...".
func GenerateNanoIDWithPrefix(prefix string, length int) string {
	return fmt.Sprintf("%s_%s", prefix, GenerateNanoID(length))
}
