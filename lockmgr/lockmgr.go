// Package lockmgr implements strict two-phase locking over named tables,
// with a configurable deadlock policy: wait-die timestamp arbitration or
// wait-for-graph cycle detection.
package lockmgr

import (
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/InfedmixDBMS/ConcurrencyControl/response"
	"github.com/InfedmixDBMS/ConcurrencyControl/txn"
	"github.com/InfedmixDBMS/ConcurrencyControl/waitcoord"
)

// Action is the kind of access a query requests.
type Action int

const (
	Read Action = iota
	Write
)

// DeadlockPolicy selects which deadlock-handling variant a Manager runs.
// Exactly one is configured per Manager; the two are alternative
// configurations and are never combined.
type DeadlockPolicy int

const (
	// WaitDie is the non-preemptive timestamp rule: an older requester
	// waits, a younger requester aborts.
	WaitDie DeadlockPolicy = iota
	// WaitForGraph detects cycles in the wait-for graph and aborts the
	// requester whose edge would close the cycle.
	WaitForGraph
)

// txnLocks is the engine-private bookkeeping lockmgr keeps per
// transaction: the shared/exclusive tables it currently holds, whether
// it has released any lock yet (the 2PL shrinking-phase marker), and
// what it is currently waiting for.
type txnLocks struct {
	shared          map[string]struct{}
	exclusive       map[string]struct{}
	hasReleasedLock bool
	waitingFor      int64 // 0 means not waiting
}

func newTxnLocks() *txnLocks {
	return &txnLocks{
		shared:    make(map[string]struct{}),
		exclusive: make(map[string]struct{}),
	}
}

// Manager is the S2PL lock manager: shared/exclusive lock tables keyed by
// table name, plus whichever deadlock policy it was configured with.
type Manager struct {
	// mu guards everything below: the core is a logically single-threaded
	// serializer, so every exported entrypoint takes mu for its whole
	// duration.
	mu sync.Mutex

	registry *txn.Registry
	policy   DeadlockPolicy
	coord    *waitcoord.Coordinator

	sharedLocks    map[string]map[int64]struct{} // name -> holders
	exclusiveLocks map[string]int64              // name -> sole holder
	locks          map[int64]*txnLocks

	graph *waitForGraph
}

// New creates a lock manager over registry, using the given deadlock
// policy. registry is shared with the caller so that Begin/commit_flushed/
// rollback/abort/end/get_status all observe the same transaction set.
func New(registry *txn.Registry, policy DeadlockPolicy) *Manager {
	return &Manager{
		registry:       registry,
		policy:         policy,
		coord:          waitcoord.New(),
		sharedLocks:    make(map[string]map[int64]struct{}),
		exclusiveLocks: make(map[string]int64),
		locks:          make(map[int64]*txnLocks),
		graph:          newWaitForGraph(),
	}
}

// Coordinator exposes the wait/wakeup coordinator so a caller blocked on a
// Waiting response can retrieve its handle after re-issuing the same
// query (the handle is keyed by (tid, table), see waitcoord.Register).
func (m *Manager) Coordinator() *waitcoord.Coordinator {
	return m.coord
}

func (m *Manager) txnState(id int64) *txnLocks {
	tl, ok := m.locks[id]
	if !ok {
		tl = newTxnLocks()
		m.locks[id] = tl
	}
	return tl
}

// Query requests a shared or exclusive lock on object for a Read or
// Write action.
func (m *Manager) Query(tid int64, action Action, object string) response.Response {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := m.registry.ActiveIDs()

	if !m.registry.IsQueryable(tid) {
		if _, err := m.registry.Get(tid); err != nil {
			return response.Fail(tid, err.Error(), nil, active)
		}
		st, _ := m.registry.Status(tid)
		return response.Fail(tid, "transaction "+itoa(tid)+" is in "+st.String()+" state", nil, active)
	}

	tl := m.txnState(tid)
	if tl.hasReleasedLock {
		return response.Fail(tid, "2PL violated", nil, active)
	}

	exclusiveHolder, hasExclusive := m.exclusiveLocks[object]
	sharedHolders := m.sharedLocks[object]

	switch action {
	case Read:
		if hasExclusive && exclusiveHolder != tid {
			return m.conflict(tid, object, []int64{exclusiveHolder}, active, "Read")
		}
		if !hasExclusive {
			m.grantShared(tid, object)
		}
		return response.Grant(tid, "Read lock granted on "+object, active)

	case Write:
		if hasExclusive && exclusiveHolder == tid {
			return response.Grant(tid, "Write lock already held on "+object, active)
		}
		if hasExclusive {
			return m.conflict(tid, object, []int64{exclusiveHolder}, active, "Write")
		}
		if len(sharedHolders) > 0 {
			others := otherHolders(sharedHolders, tid)
			if len(others) > 0 {
				return m.conflict(tid, object, others, active, "Write")
			}
			// Sole shared holder is the requester: upgrade.
			delete(sharedHolders, tid)
			if len(sharedHolders) == 0 {
				delete(m.sharedLocks, object)
			}
			delete(tl.shared, object)
		}
		m.grantExclusive(tid, object)
		return response.Grant(tid, "Write lock granted on "+object+" (exclusive)", active)
	}
	panic("lockmgr: unknown action")
}

func (m *Manager) grantShared(tid int64, object string) {
	holders, ok := m.sharedLocks[object]
	if !ok {
		holders = make(map[int64]struct{})
		m.sharedLocks[object] = holders
	}
	holders[tid] = struct{}{}
	m.txnState(tid).shared[object] = struct{}{}
	m.coord.ClearOnAcquire(tid, object)
}

func (m *Manager) grantExclusive(tid int64, object string) {
	m.exclusiveLocks[object] = tid
	m.txnState(tid).exclusive[object] = struct{}{}
	m.coord.ClearOnAcquire(tid, object)
}

// conflict resolves a lock conflict per the configured deadlock policy
// and returns the resulting Response.
func (m *Manager) conflict(tid int64, object string, holders []int64, active []int64, verb string) response.Response {
	sortInt64s(holders)

	switch m.policy {
	case WaitDie:
		return m.waitDie(tid, object, holders, active, verb)
	case WaitForGraph:
		return m.waitForGraphConflict(tid, object, holders, active, verb)
	default:
		panic("lockmgr: unknown deadlock policy")
	}
}

// waitDie: an older requester waits, a younger one dies. Comparing
// against the oldest holder's timestamp is enough to decide "older than
// every conflicting holder", since a requester older than the oldest
// holder among several conflicting holders is necessarily older than
// the rest too; a requester that is not older than all of them dies.
func (m *Manager) waitDie(tid int64, object string, holders []int64, active []int64, verb string) response.Response {
	rt, _ := m.registry.Get(tid)
	oldestHolder := holders[0]
	ht, _ := m.registry.Get(oldestHolder)

	if rt.Timestamp < ht.Timestamp {
		m.registerWaiting(tid, object, oldestHolder)
		slog.Debug("lockmgr wait-die: wait", "tid", tid, "object", object, "holder", oldestHolder)
		return response.Wait(tid, verb+" waiting for lock held by "+itoa(oldestHolder), holders, active)
	}

	_ = m.registry.Rollback(tid)
	m.releaseLocks(tid)
	slog.Debug("lockmgr wait-die: abort", "tid", tid, "object", object, "holder", oldestHolder)
	return response.Fail(tid, "Wait-Die abort", holders, active)
}

func (m *Manager) waitForGraphConflict(tid int64, object string, holders []int64, active []int64, verb string) response.Response {
	m.graph.addEdges(tid, holders)

	if m.graph.hasCycleFrom(tid) {
		m.graph.removeTransaction(tid)
		_ = m.registry.Rollback(tid)
		m.releaseLocks(tid)
		slog.Debug("lockmgr wait-for-graph: deadlock", "tid", tid, "object", object, "holders", holders)
		return response.Fail(tid, "Deadlock detected", holders, active)
	}

	m.registerWaiting(tid, object, holders[0])
	slog.Debug("lockmgr wait-for-graph: wait", "tid", tid, "object", object, "holders", holders)
	return response.Wait(tid, verb+" waiting for lock held by "+itoa(holders[0]), holders, active)
}

func (m *Manager) registerWaiting(tid int64, object string, waitingFor int64) {
	m.txnState(tid).waitingFor = waitingFor
	m.coord.Register(tid, object)
}

// releaseLocks is invoked exactly once per transaction, by
// CommitFlushed, Rollback, or a deadlock-policy abort of the requester
// (wait-die or wait-for-graph victim). It marks the shrinking phase, removes
// every shared/exclusive entry attributable to tid, and wakes waiters on
// whatever names changed holder sets.
func (m *Manager) releaseLocks(tid int64) {
	tl := m.txnState(tid)
	tl.hasReleasedLock = true
	m.graph.removeTransaction(tid)

	freed := make(map[string]struct{})

	for name := range tl.shared {
		holders := m.sharedLocks[name]
		if holders == nil {
			continue
		}
		delete(holders, tid)
		if len(holders) == 0 {
			delete(m.sharedLocks, name)
		}
		freed[name] = struct{}{}
	}
	for name := range tl.exclusive {
		if m.exclusiveLocks[name] == tid {
			delete(m.exclusiveLocks, name)
			freed[name] = struct{}{}
		}
	}
	tl.shared = make(map[string]struct{})
	tl.exclusive = make(map[string]struct{})

	for name := range freed {
		m.coord.Signal(name)
	}
	m.coord.PurgeTransaction(tid)
}

// CommitFlushed releases tid's locks once the recovery log collaborator
// has confirmed durability.
func (m *Manager) CommitFlushed(tid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.registry.CommitFlushed(tid); err != nil {
		return err
	}
	m.releaseLocks(tid)
	return nil
}

// Rollback moves tid to Failed and releases its locks.
func (m *Manager) Rollback(tid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.registry.Rollback(tid); err != nil {
		return err
	}
	m.releaseLocks(tid)
	return nil
}

// Abort moves tid to Aborted. Locks were already released when tid moved
// to Failed, and releaseLocks already purged its wait-for edges and
// waiter entries; Abort purges both once more after the registry
// transition and releases no locks itself.
func (m *Manager) Abort(tid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.registry.Abort(tid); err != nil {
		return err
	}
	m.graph.removeTransaction(tid)
	m.coord.PurgeTransaction(tid)
	return nil
}

func otherHolders(holders map[int64]struct{}, self int64) []int64 {
	others := make([]int64, 0, len(holders))
	for h := range holders {
		if h != self {
			others = append(others, h)
		}
	}
	return others
}

func sortInt64s(xs []int64) {
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
