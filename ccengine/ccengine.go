// Package ccengine unifies the three concurrency disciplines behind one
// contract: LockBased (S2PL), TimestampBased (BTO), and ValidationBased
// (OCC) all implement Engine, sharing the txn.Registry state machine and
// the response.Response shape while composing their own engine-specific
// bookkeeping on top of it, composition over inheritance.
package ccengine

import (
	"github.com/InfedmixDBMS/ConcurrencyControl/lockmgr"
	"github.com/InfedmixDBMS/ConcurrencyControl/response"
	"github.com/InfedmixDBMS/ConcurrencyControl/timestamp"
	"github.com/InfedmixDBMS/ConcurrencyControl/txn"
	"github.com/InfedmixDBMS/ConcurrencyControl/validation"
)

// Action is the kind of access a query requests, shared by every
// discipline's Engine implementation.
type Action int

const (
	Read Action = iota
	Write
)

// Engine is the single contract every discipline implements.
type Engine interface {
	// Begin allocates a transaction id and returns it.
	Begin() int64
	// Query requests admission for action on object.
	Query(tid int64, action Action, object string) response.Response
	// Commit asks the engine to validate/finalize tid; the engine may
	// fail tid here (BTO, OCC) or simply transition it (S2PL).
	Commit(tid int64) response.Response
	// CommitFlushed requires PartiallyCommitted and moves tid to
	// Committed; callers invoke it once the recovery log collaborator
	// confirms durability.
	CommitFlushed(tid int64) error
	// Rollback requires Active and moves tid to Failed.
	Rollback(tid int64) error
	// Abort requires Failed and moves tid to Aborted.
	Abort(tid int64) error
	// End requires Committed or Aborted and moves tid to Terminated.
	End(tid int64) error
	// Status returns tid's current lifecycle status.
	Status(tid int64) (txn.Status, error)
}

// LockBased is the S2PL engine.
type LockBased struct {
	registry *txn.Registry
	manager  *lockmgr.Manager
}

// NewLockBased creates a strict two-phase locking engine using the given
// deadlock policy.
func NewLockBased(policy lockmgr.DeadlockPolicy) *LockBased {
	r := txn.New()
	return &LockBased{registry: r, manager: lockmgr.New(r, policy)}
}

// Manager exposes the underlying lock manager, e.g. for Coordinator()
// access by a caller blocking on a Waiting response.
func (e *LockBased) Manager() *lockmgr.Manager { return e.manager }

func (e *LockBased) Begin() int64 { return e.registry.Begin() }

func (e *LockBased) Query(tid int64, action Action, object string) response.Response {
	return e.manager.Query(tid, lockmgr.Action(action), object)
}

// Commit has no engine-specific validation under S2PL: the transaction
// simply moves to PartiallyCommitted (locks are released at
// CommitFlushed, not here, so holding them across the gap still
// satisfies strict 2PL).
func (e *LockBased) Commit(tid int64) response.Response {
	active := e.registry.ActiveIDs()
	if err := e.registry.Commit(tid); err != nil {
		return response.Fail(tid, err.Error(), nil, active)
	}
	return response.Grant(tid, "commit accepted", active)
}

func (e *LockBased) CommitFlushed(tid int64) error { return e.manager.CommitFlushed(tid) }
func (e *LockBased) Rollback(tid int64) error      { return e.manager.Rollback(tid) }
func (e *LockBased) Abort(tid int64) error         { return e.manager.Abort(tid) }
func (e *LockBased) End(tid int64) error           { return e.registry.End(tid) }

func (e *LockBased) Status(tid int64) (txn.Status, error) { return e.registry.Status(tid) }

// TimestampBased is the BTO engine with the Thomas write rule.
type TimestampBased struct {
	registry *txn.Registry
	engine   *timestamp.Engine
}

// NewTimestampBased creates a basic-timestamp-ordering engine.
func NewTimestampBased() *TimestampBased {
	r := txn.New()
	return &TimestampBased{registry: r, engine: timestamp.New(r)}
}

func (e *TimestampBased) Begin() int64 { return e.registry.Begin() }

func (e *TimestampBased) Query(tid int64, action Action, object string) response.Response {
	return e.engine.Query(tid, timestamp.Action(action), object)
}

func (e *TimestampBased) Commit(tid int64) response.Response { return e.engine.Commit(tid) }
func (e *TimestampBased) CommitFlushed(tid int64) error      { return e.registry.CommitFlushed(tid) }
func (e *TimestampBased) Rollback(tid int64) error           { return e.registry.Rollback(tid) }
func (e *TimestampBased) Abort(tid int64) error              { return e.registry.Abort(tid) }
func (e *TimestampBased) End(tid int64) error                { return e.registry.End(tid) }

func (e *TimestampBased) Status(tid int64) (txn.Status, error) { return e.registry.Status(tid) }

// ValidationBased is the optimistic/OCC engine.
type ValidationBased struct {
	registry *txn.Registry
	engine   *validation.Engine
}

// NewValidationBased creates a validation-based (optimistic) engine.
func NewValidationBased() *ValidationBased {
	r := txn.New()
	return &ValidationBased{registry: r, engine: validation.New(r)}
}

// Begin allocates both the shared registry id and the engine's private
// start-timestamp bookkeeping; unlike the other two disciplines,
// validation.Engine owns Begin itself since it must initialize that
// bookkeeping atomically with allocation.
func (e *ValidationBased) Begin() int64 { return e.engine.Begin() }

func (e *ValidationBased) Query(tid int64, action Action, object string) response.Response {
	return e.engine.Query(tid, validation.Action(action), object)
}

func (e *ValidationBased) Commit(tid int64) response.Response { return e.engine.Commit(tid) }
func (e *ValidationBased) CommitFlushed(tid int64) error       { return e.engine.CommitFlushed(tid) }
func (e *ValidationBased) Rollback(tid int64) error            { return e.registry.Rollback(tid) }
func (e *ValidationBased) Abort(tid int64) error               { return e.registry.Abort(tid) }
func (e *ValidationBased) End(tid int64) error                 { return e.registry.End(tid) }

func (e *ValidationBased) Status(tid int64) (txn.Status, error) { return e.registry.Status(tid) }

var (
	_ Engine = (*LockBased)(nil)
	_ Engine = (*TimestampBased)(nil)
	_ Engine = (*ValidationBased)(nil)
)
