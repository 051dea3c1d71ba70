package timer

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedEvent struct {
	sessionID string // empty for room-wide broadcasts
	event     Event
}

type captureBroadcaster struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (b *captureBroadcaster) Broadcast(timerID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, capturedEvent{event: ev})
}

func (b *captureBroadcaster) SendToSession(sessionID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, capturedEvent{sessionID: sessionID, event: ev})
}

func (b *captureBroadcaster) byType(t EventType) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, ce := range b.events {
		if ce.event.Type == t {
			out = append(out, ce.event)
		}
	}
	return out
}

func (b *captureBroadcaster) order() []EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]EventType, len(b.events))
	for i, ce := range b.events {
		out[i] = ce.event.Type
	}
	return out
}

func newTestService(t *testing.T) (*Service, *Registry, *captureBroadcaster, *clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClock()
	registry := NewRegistry()
	bc := &captureBroadcaster{}
	svc := NewService(registry, bc, clk, Config{})
	return svc, registry, bc, clk
}

func TestSetDuration(t *testing.T) {
	svc, registry, bc, _ := newTestService(t)
	id := svc.Create()

	require.NoError(t, svc.SetDuration(id, 300))

	rec, ok := registry.Get(id)
	require.True(t, ok)
	assert.Equal(t, 300, rec.Duration)
	assert.Equal(t, 300, rec.Remaining)
	assert.False(t, rec.Running)

	events := bc.byType(EventDurationSet)
	require.Len(t, events, 1)
	var payload DurationSetPayload
	require.NoError(t, json.Unmarshal(events[0].Data, &payload))
	assert.Equal(t, DurationSetPayload{Duration: 300, Remaining: 300}, payload)
}

func TestSetDurationWhileRunningRejected(t *testing.T) {
	svc, registry, _, _ := newTestService(t)
	id := svc.Create()
	require.NoError(t, svc.SetDuration(id, 60))
	require.NoError(t, svc.Start(id))

	err := svc.SetDuration(id, 120)
	assert.ErrorIs(t, err, ErrInvalidState)

	rec, _ := registry.Get(id)
	assert.Equal(t, 60, rec.Duration)
	assert.True(t, rec.Running)
}

func TestSetDurationNegativeRejected(t *testing.T) {
	svc, registry, _, _ := newTestService(t)
	id := svc.Create()

	err := svc.SetDuration(id, -5)
	assert.ErrorIs(t, err, ErrInvalidState)

	rec, _ := registry.Get(id)
	assert.Equal(t, 0, rec.Duration)
	assert.Equal(t, 0, rec.Remaining)
}

func TestStartSetsDeadline(t *testing.T) {
	svc, registry, bc, clk := newTestService(t)
	id := svc.Create()
	require.NoError(t, svc.SetDuration(id, 300))

	require.NoError(t, svc.Start(id))

	rec, _ := registry.Get(id)
	assert.True(t, rec.Running)
	assert.Equal(t, clk.Now().Add(300*time.Second), rec.EndTime)

	events := bc.byType(EventStarted)
	require.Len(t, events, 1)
	var payload StartedPayload
	require.NoError(t, json.Unmarshal(events[0].Data, &payload))
	assert.Equal(t, rec.EndTime.UnixMilli(), payload.EndTime)
	assert.Equal(t, 300, payload.Remaining)
}

func TestStartWithoutDurationRejected(t *testing.T) {
	svc, registry, bc, _ := newTestService(t)
	id := svc.Create()

	err := svc.Start(id)
	assert.ErrorIs(t, err, ErrNoDuration)

	rec, _ := registry.Get(id)
	assert.False(t, rec.Running)
	assert.Empty(t, bc.byType(EventStarted))
}

func TestStartWhileRunningIsNoOp(t *testing.T) {
	svc, registry, bc, clk := newTestService(t)
	id := svc.Create()
	require.NoError(t, svc.SetDuration(id, 300))
	require.NoError(t, svc.Start(id))

	rec, _ := registry.Get(id)
	endTime := rec.EndTime

	clk.Advance(10 * time.Second)
	require.NoError(t, svc.Start(id))

	rec, _ = registry.Get(id)
	assert.Equal(t, endTime, rec.EndTime)
	assert.Len(t, bc.byType(EventStarted), 1)
}

func TestStopFoldsElapsedTime(t *testing.T) {
	svc, registry, bc, clk := newTestService(t)
	id := svc.Create()
	require.NoError(t, svc.SetDuration(id, 300))
	require.NoError(t, svc.Start(id))

	clk.Advance(120 * time.Second)
	require.NoError(t, svc.Stop(id))

	rec, _ := registry.Get(id)
	assert.False(t, rec.Running)
	assert.Equal(t, 180, rec.Remaining)
	assert.True(t, rec.EndTime.IsZero())

	events := bc.byType(EventStopped)
	require.Len(t, events, 1)
	var payload StoppedPayload
	require.NoError(t, json.Unmarshal(events[0].Data, &payload))
	assert.Equal(t, 180, payload.Remaining)
}

func TestStopWhileStoppedIsNoOp(t *testing.T) {
	svc, _, bc, _ := newTestService(t)
	id := svc.Create()
	require.NoError(t, svc.SetDuration(id, 60))

	require.NoError(t, svc.Stop(id))
	assert.Empty(t, bc.byType(EventStopped))
}

func TestStopClampsOverrunToZero(t *testing.T) {
	svc, registry, _, clk := newTestService(t)
	id := svc.Create()
	require.NoError(t, svc.SetDuration(id, 5))
	require.NoError(t, svc.Start(id))

	clk.Advance(time.Minute)
	require.NoError(t, svc.Stop(id))

	rec, _ := registry.Get(id)
	assert.Equal(t, 0, rec.Remaining)
}

func TestResetRestoresDuration(t *testing.T) {
	svc, registry, bc, clk := newTestService(t)
	id := svc.Create()
	require.NoError(t, svc.SetDuration(id, 300))
	require.NoError(t, svc.Start(id))
	clk.Advance(100 * time.Second)

	require.NoError(t, svc.Reset(id))

	rec, _ := registry.Get(id)
	assert.False(t, rec.Running)
	assert.Equal(t, 300, rec.Remaining)
	assert.True(t, rec.EndTime.IsZero())

	events := bc.byType(EventReset)
	require.Len(t, events, 1)
	var payload ResetPayload
	require.NoError(t, json.Unmarshal(events[0].Data, &payload))
	assert.Equal(t, ResetPayload{Duration: 300, Remaining: 300}, payload)
}

func TestResetCancelsWatcher(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	id := svc.Create()
	require.NoError(t, svc.SetDuration(id, 300))
	require.NoError(t, svc.Start(id))

	svc.mu.Lock()
	_, watching := svc.watchers[id]
	svc.mu.Unlock()
	require.True(t, watching)

	require.NoError(t, svc.Reset(id))

	svc.mu.Lock()
	_, watching = svc.watchers[id]
	svc.mu.Unlock()
	assert.False(t, watching)
}

func TestJoinValidation(t *testing.T) {
	svc, _, bc, _ := newTestService(t)

	assert.ErrorIs(t, svc.Join("", "sess-1"), ErrInvalidID)
	assert.ErrorIs(t, svc.Join("happy-cloud-42", "sess-1"), ErrNotFound)
	assert.Empty(t, bc.byType(EventStateSnapshot))
}

func TestJoinEmitsSnapshotAndCountsUser(t *testing.T) {
	svc, registry, bc, clk := newTestService(t)
	id := svc.Create()
	require.NoError(t, svc.SetDuration(id, 300))
	require.NoError(t, svc.Start(id))
	clk.Advance(60 * time.Second)

	require.NoError(t, svc.Join(id, "sess-1"))

	snapshots := bc.byType(EventStateSnapshot)
	require.Len(t, snapshots, 1)
	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(snapshots[0].Data, &snap))
	assert.Equal(t, 300, snap.Duration)
	assert.Equal(t, 240, snap.Remaining)
	assert.True(t, snap.Running)
	assert.NotZero(t, snap.EndTime)

	require.Len(t, bc.byType(EventJoinAck), 1)

	bc.mu.Lock()
	for _, ce := range bc.events {
		if ce.event.Type == EventStateSnapshot || ce.event.Type == EventJoinAck {
			assert.Equal(t, "sess-1", ce.sessionID)
		}
	}
	bc.mu.Unlock()

	rec, _ := registry.Get(id)
	assert.Equal(t, 1, rec.ConnectedUsers)
	assert.Equal(t, clk.Now(), rec.LastActivity)
}

func TestJoinSnapshotOrderedWithTransitions(t *testing.T) {
	svc, _, bc, _ := newTestService(t)
	id := svc.Create()
	require.NoError(t, svc.SetDuration(id, 60))

	require.NoError(t, svc.Join(id, "sess-1"))
	require.NoError(t, svc.Start(id))

	// the joiner's snapshot shows a stopped room, so the started broadcast
	// must be queued after it, never lost in between
	assert.Equal(t, []EventType{
		EventDurationSet,
		EventStateSnapshot,
		EventJoinAck,
		EventStarted,
	}, bc.order())

	snapshots := bc.byType(EventStateSnapshot)
	require.Len(t, snapshots, 1)
	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(snapshots[0].Data, &snap))
	assert.False(t, snap.Running)
}

func TestLeaveDecrementsAndFloorsAtZero(t *testing.T) {
	svc, registry, _, _ := newTestService(t)
	id := svc.Create()
	require.NoError(t, svc.Join(id, "sess-1"))

	svc.Leave(id)
	rec, _ := registry.Get(id)
	assert.Equal(t, 0, rec.ConnectedUsers)

	svc.Leave(id)
	rec, _ = registry.Get(id)
	assert.Equal(t, 0, rec.ConnectedUsers)
}

func TestCompleteIsIdempotent(t *testing.T) {
	svc, registry, bc, clk := newTestService(t)
	id := svc.Create()
	require.NoError(t, svc.SetDuration(id, 5))
	require.NoError(t, svc.Start(id))

	clk.Advance(5 * time.Second)
	assert.False(t, svc.completeIfDue(id))

	rec, _ := registry.Get(id)
	assert.False(t, rec.Running)
	assert.Equal(t, 0, rec.Remaining)
	assert.True(t, rec.EndTime.IsZero())
	assert.Len(t, bc.byType(EventCompleted), 1)

	// a late tick after completion must not re-emit
	assert.False(t, svc.completeIfDue(id))
	assert.Len(t, bc.byType(EventCompleted), 1)
}

func TestCompleteNotDueKeepsWatching(t *testing.T) {
	svc, registry, bc, clk := newTestService(t)
	id := svc.Create()
	require.NoError(t, svc.SetDuration(id, 10))
	require.NoError(t, svc.Start(id))

	clk.Advance(3 * time.Second)
	assert.True(t, svc.completeIfDue(id))

	rec, _ := registry.Get(id)
	assert.True(t, rec.Running)
	assert.Empty(t, bc.byType(EventCompleted))
}

func TestWatcherCompletesRunningTimer(t *testing.T) {
	svc, _, bc, clk := newTestService(t)
	id := svc.Create()
	require.NoError(t, svc.SetDuration(id, 3))
	require.NoError(t, svc.Start(id))

	// wait for the watcher's ticker to register with the fake clock
	clk.BlockUntil(1)

	require.Eventually(t, func() bool {
		clk.Advance(time.Second)
		snap, ok := svc.Snapshot(id)
		return ok && !snap.Running && snap.Remaining == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Len(t, bc.byType(EventCompleted), 1)
}

func TestStatsSnapshot(t *testing.T) {
	svc, _, _, clk := newTestService(t)

	svc.Create()
	running := svc.Create()
	require.NoError(t, svc.SetDuration(running, 120))
	require.NoError(t, svc.Start(running))
	require.NoError(t, svc.Join(running, "sess-1"))

	clk.Advance(20 * time.Second)

	stats := svc.Stats()
	assert.Equal(t, 2, stats.TotalTimers)
	assert.Equal(t, 1, stats.ActiveTimers)
	assert.Equal(t, 1, stats.TotalConnectedUsers)
	require.Len(t, stats.Timers, 2)

	for _, rs := range stats.Timers {
		assert.LessOrEqual(t, len(rs.ID), len("12345678..."))
		if rs.Running {
			assert.Equal(t, 100, rs.Time)
		} else {
			assert.Equal(t, 0, rs.ConnectedUsers)
		}
	}
}

func TestSnapshotUnknownRoom(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, ok := svc.Snapshot("nope")
	assert.False(t, ok)
}
