// Package txn provides the transaction registry and state machine shared
// by all three concurrency disciplines. A six-state lifecycle splits the
// single abort path into Failed -> Aborted and inserts PartiallyCommitted
// between Active and Committed, so a caller can distinguish "validated,
// not yet durable" from "durable".
package txn

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/InfedmixDBMS/ConcurrencyControl/ccerr"
)

// Status is one of the six lifecycle states a transaction passes through.
type Status int

const (
	// Active is the only queryable state.
	Active Status = iota
	// PartiallyCommitted means commit() has run but commit_flushed() has
	// not: the recovery log collaborator has not yet confirmed durability.
	PartiallyCommitted
	// Committed means commit_flushed() has run; all locks are released.
	Committed
	// Failed means the transaction cannot proceed under the configured
	// discipline and must be aborted.
	Failed
	// Aborted is the terminal failure state, reached via abort().
	Aborted
	// Terminated is the final state for both successful and failed
	// transactions, reached via end().
	Terminated
)

func (s Status) String() string {
	switch s {
	case Active:
		return "Active"
	case PartiallyCommitted:
		return "PartiallyCommitted"
	case Committed:
		return "Committed"
	case Failed:
		return "Failed"
	case Aborted:
		return "Aborted"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Transaction is one registry entry. Engine-specific fields (lock sets,
// read/write sets, validation timestamps) live in the owning engine
// package, keyed by the same id; Transaction itself only carries what
// every discipline needs.
type Transaction struct {
	ID        int64
	Timestamp int64
	Status    Status
}

// Registry allocates transaction ids/timestamps and enforces the legal
// state transitions. It is the base every engine composes over rather
// than extends, and adds its own bookkeeping around it.
//
// Registry is logically single-threaded internally: every exported
// method takes the same mutex, so engines built on top of it get the
// "executes atomically with respect to every other such call" guarantee
// for the registry's own state. Engine bookkeeping is not covered by this
// mutex: lockmgr.Manager, timestamp.Engine and validation.Engine each
// guard theirs with a mutex of their own.
type Registry struct {
	mu           sync.Mutex
	nextID       int64
	transactions map[int64]*Transaction
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		transactions: make(map[int64]*Transaction),
	}
}

// Begin allocates the next id and timestamp and creates the entry in
// Active. Ids and timestamps are both strictly increasing and are never
// reused.
func (r *Registry) Begin() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.transactions[id] = &Transaction{
		ID:        id,
		Timestamp: id,
		Status:    Active,
	}
	slog.Debug("txn begin", "id", id)
	return id
}

// Get returns the transaction record for id, or a contract-violation
// error if id is unknown.
func (r *Registry) Get(id int64) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(id)
}

func (r *Registry) getLocked(id int64) (*Transaction, error) {
	t, ok := r.transactions[id]
	if !ok {
		return nil, ccerr.NewUnknownTransaction(id)
	}
	return t, nil
}

// Status returns the current status of id.
func (r *Registry) Status(id int64) (Status, error) {
	t, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return t.Status, nil
}

// IsQueryable reports whether id is Active. Unlike the state transitions
// below, this never returns a hard error: querying a non-Active or
// unknown transaction simply yields a failed Response at the call site.
func (r *Registry) IsQueryable(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	return ok && t.Status == Active
}

// ActiveIDs returns a deterministic, ascending snapshot of ids currently
// Active, for Response.ActiveTransactions.
func (r *Registry) ActiveIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeIDsLocked()
}

func (r *Registry) activeIDsLocked() []int64 {
	ids := make([]int64, 0, len(r.transactions))
	for id, t := range r.transactions {
		if t.Status == Active {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OldestActive returns the minimum timestamp among Active transactions.
// Not required by any single discipline's decision logic but useful to
// callers wanting a liveness bound or a retention cutoff (see
// validation.Engine.Prune).
func (r *Registry) OldestActive() (timestamp int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var min int64
	found := false
	for _, t := range r.transactions {
		if t.Status != Active {
			continue
		}
		if !found || t.Timestamp < min {
			min = t.Timestamp
			found = true
		}
	}
	return min, found
}

// transition moves id from one of `from` to `to`, under the registry's
// lock, and returns the Transaction record. The lock is released before
// it returns.
func (r *Registry) transition(id int64, to Status, from ...Status) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.getLocked(id)
	if err != nil {
		return nil, err
	}
	ok := false
	for _, f := range from {
		if t.Status == f {
			ok = true
			break
		}
	}
	if !ok {
		return nil, ccerr.NewIllegalTransition(id, t.Status.String(), to.String())
	}
	prev := t.Status
	t.Status = to
	slog.Debug("txn transition", "id", id, "from", prev, "to", to)
	return t, nil
}

// Commit requires Active and moves id to PartiallyCommitted.
func (r *Registry) Commit(id int64) error {
	_, err := r.transition(id, PartiallyCommitted, Active)
	return err
}

// CommitFlushed requires PartiallyCommitted and moves id to Committed.
// This is the point at which the external recovery log has durably
// persisted the transaction's effects.
func (r *Registry) CommitFlushed(id int64) error {
	_, err := r.transition(id, Committed, PartiallyCommitted)
	return err
}

// Rollback requires Active and moves id to Failed.
func (r *Registry) Rollback(id int64) error {
	_, err := r.transition(id, Failed, Active)
	return err
}

// Abort requires Failed and moves id to Aborted.
func (r *Registry) Abort(id int64) error {
	_, err := r.transition(id, Aborted, Failed)
	return err
}

// End requires Committed or Aborted and moves id to Terminated.
func (r *Registry) End(id int64) error {
	_, err := r.transition(id, Terminated, Committed, Aborted)
	return err
}

// WithTransaction runs fn with the registry's mutex held and the
// transaction record for id, letting an engine atomically read/mutate
// its own per-id bookkeeping (lock sets, read/write sets, ...) alongside
// a Registry-guarded status check. fn must not call back into Registry.
func (r *Registry) WithTransaction(id int64, fn func(t *Transaction) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.getLocked(id)
	if err != nil {
		return err
	}
	return fn(t)
}
