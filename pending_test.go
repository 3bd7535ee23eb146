package uplink

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveOutcome(t *testing.T, e *pendingEntry) pendingOutcome {
	t.Helper()
	select {
	case out := <-e.ch:
		return out
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outcome")
		return pendingOutcome{}
	}
}

func TestPendingTableResolveID(t *testing.T) {
	table := newPendingTable()

	e := newPendingEntry("call-1", kindCall)
	table.add(e)
	require.Equal(t, 1, table.size())

	ok := table.resolveID("call-1", map[string]any{"n": 1})
	require.True(t, ok)
	assert.Zero(t, table.size())

	out := receiveOutcome(t, e)
	require.NoError(t, out.err)
	assert.Equal(t, map[string]any{"n": 1}, out.data)
}

func TestPendingTableResolveIDUnknown(t *testing.T) {
	table := newPendingTable()
	assert.False(t, table.resolveID("ghost", nil))
}

func TestPendingTableResolveLoadsSkipsCalls(t *testing.T) {
	table := newPendingTable()

	load := newPendingEntry("load-1", kindLoad)
	call := newPendingEntry("call-1", kindCall)
	table.add(load)
	table.add(call)

	n := table.resolveLoads("payload")
	assert.Equal(t, 1, n)

	out := receiveOutcome(t, load)
	assert.Equal(t, "payload", out.data)

	// The call entry waits for its id-matched reply.
	assert.Equal(t, 1, table.size())
}

func TestPendingTableResolveLoadsMultiple(t *testing.T) {
	table := newPendingTable()

	a := newPendingEntry("load-a", kindLoad)
	b := newPendingEntry("load-b", kindLoad)
	table.add(a)
	table.add(b)

	n := table.resolveLoads("snapshot")
	assert.Equal(t, 2, n)
	assert.Zero(t, table.size())

	assert.Equal(t, "snapshot", receiveOutcome(t, a).data)
	assert.Equal(t, "snapshot", receiveOutcome(t, b).data)
}

func TestPendingTableRejectAll(t *testing.T) {
	table := newPendingTable()

	a := newPendingEntry("a", kindLoad)
	b := newPendingEntry("b", kindCall)
	table.add(a)
	table.add(b)

	cause := errors.New("torn down")
	n := table.rejectAll(cause)
	assert.Equal(t, 2, n)
	assert.Zero(t, table.size())

	assert.ErrorIs(t, receiveOutcome(t, a).err, cause)
	assert.ErrorIs(t, receiveOutcome(t, b).err, cause)
}

func TestPendingEntryResolvesOnce(t *testing.T) {
	e := newPendingEntry("once", kindCall)

	e.resolve("first")
	e.resolve("second")
	e.reject(errors.New("late"))

	out := receiveOutcome(t, e)
	assert.Equal(t, "first", out.data)
	assert.NoError(t, out.err)

	select {
	case extra := <-e.ch:
		t.Fatalf("Expected a single outcome, got another: %+v", extra)
	default:
	}
}

func TestPendingTableRemove(t *testing.T) {
	table := newPendingTable()

	e := newPendingEntry("gone", kindCall)
	table.add(e)
	table.remove("gone")

	assert.Zero(t, table.size())
	assert.False(t, table.resolveID("gone", nil))
}
