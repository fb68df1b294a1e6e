package util

import (
	"errors"
	"strings"
)

var errBadFileName = errors.New("invalid file name")

// SanitizeFileName flattens path separators and rejects traversal patterns so
// generated asset names are safe to use as storage keys.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errBadFileName
	}
	cleaned := strings.TrimSpace(name)
	cleaned = strings.NewReplacer("/", "_", "\\", "_").Replace(cleaned)
	if cleaned == "" {
		return "", errBadFileName
	}
	return cleaned, nil
}
