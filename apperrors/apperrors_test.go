package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAsRequestFailurePassesThrough(t *testing.T) {
	rf := NotFound("incident not found", nil)
	if got := AsRequestFailure(rf); got != rf {
		t.Errorf("AsRequestFailure: expected the same failure back, got %v", got)
	}

	wrapped := fmt.Errorf("loading incident: %w", rf)
	if got := AsRequestFailure(wrapped); got != rf {
		t.Errorf("AsRequestFailure: expected the wrapped failure unwrapped, got %v", got)
	}
}

func TestAsRequestFailureWrapsPlainErrors(t *testing.T) {
	cause := errors.New("connection reset")
	rf := AsRequestFailure(cause)

	if rf.Kind != KindInternal {
		t.Errorf("AsRequestFailure: expected kind %s, got %s", KindInternal, rf.Kind)
	}
	if rf.Code != http.StatusInternalServerError {
		t.Errorf("AsRequestFailure: expected status 500, got %d", rf.Code)
	}
	if rf.Detail() != "connection reset" {
		t.Errorf("AsRequestFailure: expected the cause in Detail, got %q", rf.Detail())
	}
}
