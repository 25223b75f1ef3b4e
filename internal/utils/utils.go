package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UserIDPrefix marks identifiers issued for user records.
const UserIDPrefix = "usr"

// GenerateID generates a unique ID with the given prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// ValidateUserID reports whether id has the shape of an issued user ID.
func ValidateUserID(id string) bool {
	rest, ok := strings.CutPrefix(id, UserIDPrefix+"-")
	if !ok {
		return false
	}
	return uuid.Validate(rest) == nil
}
