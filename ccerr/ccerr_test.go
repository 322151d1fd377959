package ccerr

import (
	"errors"
	"testing"
)

func TestNewUnknownTransaction(t *testing.T) {
	err := NewUnknownTransaction(42)

	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if ce.Code != UnknownTransaction {
		t.Errorf("Code = %v, want UnknownTransaction", ce.Code)
	}
	if ce.UserData != int64(42) {
		t.Errorf("UserData = %v, want 42", ce.UserData)
	}
}

func TestNewIllegalTransition(t *testing.T) {
	err := NewIllegalTransition(7, "Active", "Committed")

	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if ce.Code != IllegalTransition {
		t.Errorf("Code = %v, want IllegalTransition", ce.Code)
	}
	if ce.Error() == "" {
		t.Error("Error() returned empty string")
	}
}

func TestCodeString(t *testing.T) {
	cases := map[Code]string{
		UnknownTransaction: "unknown transaction",
		IllegalTransition:  "illegal transition",
		Unknown:            "unknown",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", code, got, want)
		}
	}
}
