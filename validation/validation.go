// Package validation implements optimistic (validation-based) concurrency
// control: transactions execute over private read/write sets and are
// validated at commit against concurrently committed transactions using
// start/validation/finish timestamps.
package validation

import (
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/InfedmixDBMS/ConcurrencyControl/response"
	"github.com/InfedmixDBMS/ConcurrencyControl/txn"
)

// Action is the kind of access a query requests.
type Action int

const (
	Read Action = iota
	Write
)

// bookkeeping is the engine-private per-transaction state: its read and
// write sets plus its start, validation, and finish timestamps.
type bookkeeping struct {
	readSet    map[string]struct{}
	writeSet   map[string]struct{}
	start      int64
	validation int64 // math.MaxInt64 sentinel means "not yet set"
	finish     int64
}

const unset = math.MaxInt64

func newBookkeeping(start int64) *bookkeeping {
	return &bookkeeping{
		readSet:    make(map[string]struct{}),
		writeSet:   make(map[string]struct{}),
		start:      start,
		validation: unset,
		finish:     unset,
	}
}

// Engine is the validation/OCC decision engine.
type Engine struct {
	// mu guards everything below: the core is a logically single-threaded
	// serializer, so every exported entrypoint holds it for its duration.
	mu sync.Mutex

	registry *txn.Registry
	books    map[int64]*bookkeeping
	clock    int64 // monotonic counter for validation/finish timestamps
}

// New creates a validation engine over registry.
func New(registry *txn.Registry) *Engine {
	return &Engine{
		registry: registry,
		books:    make(map[int64]*bookkeeping),
	}
}

// tick returns the next value of the engine's monotonic counter, used in
// place of a wall-clock source so distinct calls always yield distinct
// validation/finish timestamps regardless of clock resolution.
func (e *Engine) tick() int64 {
	e.clock++
	return e.clock
}

// Begin allocates a transaction via registry and its start timestamp.
// The start timestamp is independent from the id/Timestamp txn.Registry
// allocates: it only needs to be strictly increasing within this
// engine's own bookkeeping, not equal to the shared registry timestamp.
func (e *Engine) Begin() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.registry.Begin()
	e.books[id] = newBookkeeping(e.tick())
	return id
}

func (e *Engine) bookFor(id int64) *bookkeeping {
	b, ok := e.books[id]
	if !ok {
		b = newBookkeeping(e.tick())
		e.books[id] = b
	}
	return b
}

// Query never blocks: reads and writes just add to the private sets and
// always return Granted.
func (e *Engine) Query(tid int64, action Action, object string) response.Response {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := e.registry.ActiveIDs()
	if !e.registry.IsQueryable(tid) {
		if _, err := e.registry.Get(tid); err != nil {
			return response.Fail(tid, err.Error(), nil, active)
		}
		st, _ := e.registry.Status(tid)
		return response.Fail(tid, "transaction is in "+st.String()+" state", nil, active)
	}

	b := e.bookFor(tid)
	switch action {
	case Read:
		b.readSet[object] = struct{}{}
		return response.Grant(tid, "Read successful", active)
	case Write:
		b.writeSet[object] = struct{}{}
		return response.Grant(tid, "Write successful", active)
	}
	panic("validation: unknown action")
}

// Commit runs backward validation against every other transaction
// currently Committed or Terminated with a finite finish timestamp,
// checking whether its write set overlaps this transaction's read or
// write set during any window the two actually ran concurrently.
func (e *Engine) Commit(tid int64) response.Response {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := e.registry.ActiveIDs()
	if !e.registry.IsQueryable(tid) {
		if _, err := e.registry.Get(tid); err != nil {
			return response.Fail(tid, err.Error(), nil, active)
		}
		st, _ := e.registry.Status(tid)
		return response.Fail(tid, "transaction is in "+st.String()+" state", nil, active)
	}

	Ti := e.bookFor(tid)
	Ti.validation = e.tick()

	for otherID, Tj := range e.books {
		if otherID == tid {
			continue
		}
		st, err := e.registry.Status(otherID)
		if err != nil {
			continue
		}
		if st != txn.Committed && st != txn.Terminated {
			continue
		}
		if Tj.finish == unset {
			continue
		}
		if Tj.finish <= Ti.start {
			continue // Tj finished before Ti began.
		}
		if Tj.start >= Ti.validation {
			continue // Tj started after Ti validated.
		}
		if intersects(Tj.writeSet, Ti.readSet) || intersects(Tj.writeSet, Ti.writeSet) {
			// Driven through Failed to Aborted within this call:
			// validation failure is detected at commit time, so the
			// caller never observes the intermediate Failed state.
			_ = e.registry.Rollback(tid)
			_ = e.registry.Abort(tid)
			slog.Debug("validation: conflict", "tid", tid, "with", otherID)
			return response.Fail(tid, "Validation failed due to conflict with transaction "+itoa(otherID), nil, active)
		}
	}

	if err := e.registry.Commit(tid); err != nil {
		return response.Fail(tid, err.Error(), nil, active)
	}
	return response.Grant(tid, "Validation successful", active)
}

// CommitFlushed assigns finish_timestamp and delegates the status
// transition to registry.
func (e *Engine) CommitFlushed(tid int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.registry.CommitFlushed(tid); err != nil {
		return err
	}
	e.bookFor(tid).finish = e.tick()
	return nil
}

// Prune drops bookkeeping for finished transactions whose finish
// timestamp is strictly before cutoff. Never invoked by this engine's
// own decision logic, since a transaction's sets must remain available
// for validation as long as any overlapping active transaction might
// still reference them; it exists for a caller doing periodic
// housekeeping once it knows no such transaction remains.
func (e *Engine) Prune(cutoff int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, b := range e.books {
		if b.finish != unset && b.finish < cutoff {
			delete(e.books, id)
		}
	}
}

func intersects(a, b map[string]struct{}) bool {
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	for k := range small {
		if _, ok := big[k]; ok {
			return true
		}
	}
	return false
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
