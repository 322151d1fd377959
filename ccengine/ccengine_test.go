package ccengine

import (
	"testing"

	"github.com/InfedmixDBMS/ConcurrencyControl/lockmgr"
	"github.com/InfedmixDBMS/ConcurrencyControl/response"
	"github.com/InfedmixDBMS/ConcurrencyControl/txn"
	"github.com/stretchr/testify/require"
)

func TestLockBasedFullCycle(t *testing.T) {
	var e Engine = NewLockBased(lockmgr.WaitDie)
	tid := e.Begin()

	require.True(t, e.Query(tid, Write, "accounts").CanProceed())
	require.True(t, e.Commit(tid).CanProceed())
	require.NoError(t, e.CommitFlushed(tid))
	require.NoError(t, e.End(tid))

	st, err := e.Status(tid)
	require.NoError(t, err)
	require.Equal(t, txn.Terminated, st)
}

func TestLockBasedAbortCycle(t *testing.T) {
	var e Engine = NewLockBased(lockmgr.WaitForGraph)
	tid := e.Begin()

	require.True(t, e.Query(tid, Read, "accounts").CanProceed())
	require.NoError(t, e.Rollback(tid))
	require.NoError(t, e.Abort(tid))
	require.NoError(t, e.End(tid))
}

func TestTimestampBasedFullCycle(t *testing.T) {
	var e Engine = NewTimestampBased()
	tid := e.Begin()

	require.True(t, e.Query(tid, Write, "x").CanProceed())
	resp := e.Commit(tid)
	require.True(t, resp.CanProceed())
	require.NoError(t, e.CommitFlushed(tid))
	require.NoError(t, e.End(tid))
}

func TestValidationBasedFullCycle(t *testing.T) {
	var e Engine = NewValidationBased()
	tid := e.Begin()

	require.True(t, e.Query(tid, Write, "x").CanProceed())
	resp := e.Commit(tid)
	require.True(t, resp.CanProceed())
	require.NoError(t, e.CommitFlushed(tid))
	require.NoError(t, e.End(tid))
}

func TestValidationBasedConflictThroughEngine(t *testing.T) {
	e := NewValidationBased()
	t1 := e.Begin()
	t2 := e.Begin()

	e.Query(t1, Write, "a")
	e.Query(t2, Write, "a")

	require.True(t, e.Commit(t1).CanProceed())
	require.NoError(t, e.CommitFlushed(t1))

	resp := e.Commit(t2)
	require.Equal(t, response.Failed, resp.Status)
}

func TestUnknownTransactionAcrossDisciplines(t *testing.T) {
	engines := []Engine{
		NewLockBased(lockmgr.WaitDie),
		NewTimestampBased(),
		NewValidationBased(),
	}
	for _, e := range engines {
		resp := e.Query(999, Read, "x")
		require.Equal(t, response.Failed, resp.Status)
	}
}
