package orcherrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := NotFoundf("task %q", "t1")
	if !Is(err, NotFound) {
		t.Error("expected Is(err, NotFound) to be true")
	}
	if Is(err, Conflict) {
		t.Error("expected Is(err, Conflict) to be false")
	}
}

func TestIsWalksUnwrapChain(t *testing.T) {
	inner := Conflictf("version mismatch")
	wrapped := fmt.Errorf("update failed: %w", inner)
	if !Is(wrapped, Conflict) {
		t.Error("expected Is to see through fmt.Errorf wrapping via Unwrap")
	}
}

func TestIsFalseForForeignError(t *testing.T) {
	if Is(errors.New("boom"), NotFound) {
		t.Error("a plain error should never match any Kind")
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != InternalError {
		t.Errorf("KindOf(plain error) = %s, want %s", got, InternalError)
	}
	if got := KindOf(Timeoutf("deadline exceeded")); got != Timeout {
		t.Errorf("KindOf(Timeoutf(...)) = %s, want %s", got, Timeout)
	}
}

func TestWrapPreservesCauseAndUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(StorageError, "mongo insert failed", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	if err.Unwrap() != cause {
		t.Error("expected Unwrap() to return the original cause")
	}
}

func TestAsExtractsConcreteError(t *testing.T) {
	var target *Error
	err := ValidationErrorf("missing field %s", "title")
	if !As(err, &target) {
		t.Fatal("expected As to extract the *Error")
	}
	if target.Kind != ValidationError {
		t.Errorf("extracted Kind = %s, want %s", target.Kind, ValidationError)
	}
}

func TestErrorStringIncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(StorageError, "write failed", cause)
	got := err.Error()
	if got == "" {
		t.Fatal("expected non-empty error string")
	}
	if !strings.Contains(got, "disk full") {
		t.Errorf("expected error string to include the cause, got %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("expected wrapped error to chain to cause")
	}
}
