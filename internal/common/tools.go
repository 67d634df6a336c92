package common

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID generates a UUID with an optional prefix
func GenerateUUID(prefix string) string {
	id := uuid.New()
	if prefix != "" {
		return fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(id.String(), "-", ""))
	}
	return id.String()
}

// GeneratePositionID generates a position ID with "pos" prefix
func GeneratePositionID() string {
	return GenerateUUID("pos")
}

// GenerateAccountID generates an account ID with "acct" prefix
func GenerateAccountID() string {
	return GenerateUUID("acct")
}

// GenerateEvaluationID generates an evaluation ID with "eval" prefix
func GenerateEvaluationID() string {
	return GenerateUUID("eval")
}
