package utils

import "github.com/google/uuid"

// IsUUID reports whether s is a canonical hyphenated UUID. Path ids are
// checked before they reach a uuid column.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
