// Package timestamp implements basic timestamp ordering with the Thomas
// write rule: a thin engine composed over the shared txn.Registry, the
// same composition-over-inheritance shape lockmgr.Manager uses.
package timestamp

import (
	"log/slog"
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

type objectTimestamps struct {
	readTS  int64
	writeTS int64
}

type txnSets struct {
	readSet  map[string]struct{}
	writeSet map[string]struct{}
}

func newTxnSets() *txnSets {
	return &txnSets{readSet: make(map[string]struct{}), writeSet: make(map[string]struct{})}
}

// Engine is the BTO decision engine. Transaction.Timestamp (allocated by
// txn.Registry.Begin, identical to its id) is the ordering key every
// decision below compares against an object's read_ts/write_ts.
type Engine struct {
	// mu guards everything below: the core is a logically single-threaded
	// serializer, so every exported entrypoint holds it for its duration.
	mu sync.Mutex

	registry *txn.Registry
	objects  map[string]*objectTimestamps
	sets     map[int64]*txnSets
}

// New creates a BTO engine over registry.
func New(registry *txn.Registry) *Engine {
	return &Engine{
		registry: registry,
		objects:  make(map[string]*objectTimestamps),
		sets:     make(map[int64]*txnSets),
	}
}

func (e *Engine) objectState(name string) *objectTimestamps {
	o, ok := e.objects[name]
	if !ok {
		o = &objectTimestamps{}
		e.objects[name] = o
	}
	return o
}

func (e *Engine) txnState(id int64) *txnSets {
	s, ok := e.sets[id]
	if !ok {
		s = newTxnSets()
		e.sets[id] = s
	}
	return s
}

// Query admits or rejects a Read/Write under basic timestamp ordering.
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

	t, _ := e.registry.Get(tid)
	T := t.Timestamp
	obj := e.objectState(object)
	sets := e.txnState(tid)

	switch action {
	case Read:
		if T < obj.writeTS {
			_ = e.registry.Rollback(tid)
			slog.Debug("timestamp: stale read rejected", "tid", tid, "object", object, "T", T, "writeTS", obj.writeTS)
			return response.Fail(tid, "stale read: object already overwritten by a newer transaction", nil, active)
		}
		if T > obj.readTS {
			obj.readTS = T
		}
		sets.readSet[object] = struct{}{}
		return response.Grant(tid, "Read granted on "+object, active)

	case Write:
		if T < obj.readTS {
			_ = e.registry.Rollback(tid)
			slog.Debug("timestamp: stale write rejected", "tid", tid, "object", object, "T", T, "readTS", obj.readTS)
			return response.Fail(tid, "stale write: a newer reader has already observed an older value", nil, active)
		}
		if T < obj.writeTS {
			// Thomas write rule: obsolete write, recorded but not applied.
			sets.writeSet[object] = struct{}{}
			return response.Grant(tid, "Thomas write rule", active)
		}
		obj.writeTS = T
		sets.writeSet[object] = struct{}{}
		return response.Grant(tid, "Write granted on "+object, active)
	}
	panic("timestamp: unknown action")
}

// Commit checks T's read set against current write timestamps and either
// promotes to PartiallyCommitted or fails T. It only promotes to
// PartiallyCommitted; CommitFlushed (on txn.Registry) promotes to
// Committed once the caller's recovery log confirms durability.
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

	t, _ := e.registry.Get(tid)
	T := t.Timestamp
	sets := e.txnState(tid)

	for object := range sets.readSet {
		if e.objectState(object).writeTS > T {
			_ = e.registry.Rollback(tid)
			return response.Fail(tid, "commit conflict: a concurrent writer already overtook this read set", nil, active)
		}
	}

	if err := e.registry.Commit(tid); err != nil {
		return response.Fail(tid, err.Error(), nil, active)
	}
	return response.Grant(tid, "commit validated", active)
}
