package common

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateUUID(t *testing.T) {
	// Test without prefix
	id1 := GenerateUUID("")
	if id1 == "" {
		t.Error("GenerateUUID() returned empty string")
	}

	// Validate it's a proper UUID format
	if _, err := uuid.Parse(id1); err != nil {
		t.Errorf("GenerateUUID() returned invalid UUID: %v", err)
	}

	// Test with prefix
	prefix := "test"
	id2 := GenerateUUID(prefix)
	if !strings.HasPrefix(id2, prefix+"_") {
		t.Errorf("GenerateUUID() with prefix %s should start with %s_, got %s", prefix, prefix, id2)
	}

	// Test uniqueness
	id3 := GenerateUUID("")
	if id1 == id3 {
		t.Error("GenerateUUID() should generate unique UUIDs")
	}
}

func TestEntityIDPrefixes(t *testing.T) {
	if !strings.HasPrefix(GeneratePositionID(), "pos_") {
		t.Error("GeneratePositionID() should start with pos_")
	}
	if !strings.HasPrefix(GenerateAccountID(), "acct_") {
		t.Error("GenerateAccountID() should start with acct_")
	}
	if !strings.HasPrefix(GenerateEvaluationID(), "eval_") {
		t.Error("GenerateEvaluationID() should start with eval_")
	}
}
