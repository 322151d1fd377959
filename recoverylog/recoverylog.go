// Package recoverylog defines the contract for the recovery-log
// collaborator: the core calls commit_flushed only after this
// collaborator confirms durability of a transaction's effects.
//
// The WAL file format, fsync-on-append, and crash-recovery replay are
// out of scope here: this package only carries the record shape and the
// durability-confirmation contract the core actually depends on. The
// real log lives outside this module, in whatever durable store a
// deployment wires in as a Log implementation.
package recoverylog

import (
	"sync"

	"github.com/google/uuid"
)

// Record is one entry a caller may log against a transaction's commit.
// ID uses google/uuid for global correlation across whatever external
// log storage a real deployment plugs in; it plays no role in this
// core's own decisions.
type Record struct {
	ID            uuid.UUID
	TransactionID int64
	Note          string
}

// Log is the collaborator interface the core's caller drives: record the
// transaction's effects, confirm durability, and only then may the
// caller invoke commit_flushed on the engine.
type Log interface {
	Append(rec Record) error
	ConfirmDurable(transactionID int64) error
}

// InMemory is a Log used only by tests: it keeps every appended record
// and a set of transaction ids confirmed durable. No fsync, no file, no
// replay — see the package doc for why.
type InMemory struct {
	mu        sync.Mutex
	records   []Record
	confirmed map[int64]bool
}

// NewInMemory creates an empty in-memory recovery log stub.
func NewInMemory() *InMemory {
	return &InMemory{confirmed: make(map[int64]bool)}
}

func (l *InMemory) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *InMemory) ConfirmDurable(transactionID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirmed[transactionID] = true
	return nil
}

// IsDurable reports whether ConfirmDurable has been called for
// transactionID.
func (l *InMemory) IsDurable(transactionID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.confirmed[transactionID]
}
