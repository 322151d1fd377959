package recoverylog

import "testing"

func TestAppendAndConfirmDurable(t *testing.T) {
	l := NewInMemory()
	rec := Record{TransactionID: 1, Note: "commit"}

	if err := l.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if l.IsDurable(1) {
		t.Error("IsDurable should be false before ConfirmDurable")
	}
	if err := l.ConfirmDurable(1); err != nil {
		t.Fatalf("ConfirmDurable: %v", err)
	}
	if !l.IsDurable(1) {
		t.Error("IsDurable should be true after ConfirmDurable")
	}
	if l.IsDurable(2) {
		t.Error("unrelated transaction should not be durable")
	}
}
