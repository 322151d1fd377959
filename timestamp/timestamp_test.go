package timestamp

import (
	"testing"

	"github.com/InfedmixDBMS/ConcurrencyControl/response"
	"github.com/InfedmixDBMS/ConcurrencyControl/txn"
)

func TestReadThenWriteSameTransaction(t *testing.T) {
	r := txn.New()
	e := New(r)
	tid := r.Begin()

	if !e.Query(tid, Read, "accounts").CanProceed() {
		t.Fatal("read should be granted")
	}
	if !e.Query(tid, Write, "accounts").CanProceed() {
		t.Fatal("write should be granted")
	}
}

func TestStaleReadRejected(t *testing.T) {
	r := txn.New()
	e := New(r)
	stale := r.Begin()
	fresh := r.Begin()

	if !e.Query(fresh, Write, "x").CanProceed() {
		t.Fatal("fresh write should be granted")
	}
	resp := e.Query(stale, Read, "x")
	if resp.Status != response.Failed {
		t.Errorf("stale read status = %v, want Failed", resp.Status)
	}
	st, _ := r.Status(stale)
	if st != txn.Failed {
		t.Errorf("stale transaction status = %v, want Failed", st)
	}
}

func TestThomasWriteRuleDiscardsObsoleteWrite(t *testing.T) {
	r := txn.New()
	e := New(r)
	first := r.Begin()
	second := r.Begin()

	if !e.Query(second, Write, "x").CanProceed() {
		t.Fatal("second's write should be granted")
	}
	resp := e.Query(first, Write, "x")
	if resp.Status != response.Granted {
		t.Errorf("obsolete write should still be Granted under Thomas rule, got %v", resp.Status)
	}
	if resp.Reason != "Thomas write rule" {
		t.Errorf("reason = %q, want Thomas write rule", resp.Reason)
	}
	st, _ := r.Status(first)
	if st != txn.Active {
		t.Errorf("transaction issuing obsolete write should remain Active, got %v", st)
	}
}

func TestCommitFailsOnOvertakenReadSet(t *testing.T) {
	r := txn.New()
	e := New(r)
	reader := r.Begin()
	writer := r.Begin()

	if !e.Query(reader, Read, "x").CanProceed() {
		t.Fatal("read should be granted")
	}
	if !e.Query(writer, Write, "x").CanProceed() {
		t.Fatal("write should be granted")
	}

	resp := e.Commit(reader)
	if resp.Status != response.Failed {
		t.Errorf("commit status = %v, want Failed", resp.Status)
	}
}

func TestCommitPromotesToPartiallyCommitted(t *testing.T) {
	r := txn.New()
	e := New(r)
	tid := r.Begin()

	if !e.Query(tid, Write, "x").CanProceed() {
		t.Fatal("write should be granted")
	}
	resp := e.Commit(tid)
	if !resp.CanProceed() {
		t.Fatalf("commit should be granted, got %v: %s", resp.Status, resp.Reason)
	}
	st, _ := r.Status(tid)
	if st != txn.PartiallyCommitted {
		t.Errorf("status = %v, want PartiallyCommitted", st)
	}
}
