package tracker

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/readguard/readguard/types"
)

const testComm = "app"

type fakeTerminator struct {
	detections []Detection
}

func (f *fakeTerminator) Terminate(d Detection) {
	f.detections = append(f.detections, d)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestClassifier(t *testing.T) (*Classifier, *Store, *fakeTerminator) {
	t.Helper()
	store := NewStore(0)
	term := &fakeTerminator{}
	c := NewClassifier(Config{
		TargetComm: testComm,
		TargetFD:   0,
	}, store, term, quietLogger())
	return c, store, term
}

func event(eventType uint32, tid uint32, comm string) types.ReadEvent {
	ev := types.ReadEvent{
		Pid:       tid,
		Tid:       tid,
		UID:       1000,
		EventType: eventType,
	}
	copy(ev.Comm[:], comm)
	return ev
}

func readEnter(tid uint32, fd int64) types.ReadEvent {
	ev := event(types.EVENT_READ_ENTER, tid, testComm)
	ev.FD = fd
	return ev
}

func readExit(tid uint32, ret int64) types.ReadEvent {
	ev := event(types.EVENT_READ_EXIT, tid, testComm)
	ev.Ret = ret
	return ev
}

func procExit(tid uint32) types.ReadEvent {
	return event(types.EVENT_PROC_EXIT, tid, testComm)
}

func TestOtherExecutableNeverCreatesState(t *testing.T) {
	c, store, term := newTestClassifier(t)

	ev := event(types.EVENT_READ_ENTER, 100, "bash")
	c.HandleEvent(ev)
	ev = event(types.EVENT_READ_EXIT, 100, "bash")
	ev.Ret = -int64(unix.EIO)
	c.HandleEvent(ev)

	assert.Equal(t, 0, store.Len())
	assert.Empty(t, term.detections)
}

func TestEnterSetsPhaseByDescriptor(t *testing.T) {
	c, store, _ := newTestClassifier(t)

	c.HandleEvent(readEnter(1, 0))
	phase, ok := store.Get(1)
	require.True(t, ok)
	assert.Equal(t, PhaseReadingTarget, phase)

	c.HandleEvent(readEnter(2, 3))
	phase, ok = store.Get(2)
	require.True(t, ok)
	assert.Equal(t, PhaseIdle, phase)
}

func TestExitWithoutEntryIsNoOp(t *testing.T) {
	c, store, term := newTestClassifier(t)

	// The monitor attached mid-call: the exit must neither create state nor
	// fire anything.
	c.HandleEvent(readExit(7, 0))

	assert.Equal(t, 0, store.Len())
	assert.Empty(t, term.detections)
}

func TestExitNeverLeavesReadingTarget(t *testing.T) {
	c, store, _ := newTestClassifier(t)

	for _, ret := range []int64{512, 0, -int64(unix.EIO), -int64(unix.EINTR)} {
		c.HandleEvent(readEnter(1, 0))
		c.HandleEvent(readExit(1, ret))
		phase, ok := store.Get(1)
		require.True(t, ok)
		assert.Equal(t, PhaseIdle, phase, "ret=%d", ret)
	}
}

func TestIOErrorFiresTermination(t *testing.T) {
	c, store, term := newTestClassifier(t)

	c.HandleEvent(readEnter(42, 0))
	c.HandleEvent(readExit(42, -int64(unix.EIO)))

	require.Len(t, term.detections, 1)
	d := term.detections[0]
	assert.Equal(t, KindIOError, d.Kind)
	assert.Equal(t, unix.EIO, d.Errno)
	assert.Equal(t, uint32(42), d.Pid)
	assert.Equal(t, uint32(1000), d.UID)
	assert.Equal(t, testComm, d.Comm)

	phase, _ := store.Get(42)
	assert.Equal(t, PhaseIdle, phase)
}

func TestEOFFiresTermination(t *testing.T) {
	c, _, term := newTestClassifier(t)

	c.HandleEvent(readEnter(42, 0))
	c.HandleEvent(readExit(42, 0))

	require.Len(t, term.detections, 1)
	assert.Equal(t, KindEOF, term.detections[0].Kind)
	assert.Equal(t, unix.Errno(0), term.detections[0].Errno)
}

func TestWrongDescriptorNeverFires(t *testing.T) {
	c, _, term := newTestClassifier(t)

	c.HandleEvent(readEnter(42, 3))
	c.HandleEvent(readExit(42, -int64(unix.EIO)))

	assert.Empty(t, term.detections)
}

func TestRetryableErrnoDoesNotFire(t *testing.T) {
	c, store, term := newTestClassifier(t)

	c.HandleEvent(readEnter(42, 0))
	c.HandleEvent(readExit(42, -int64(unix.EAGAIN)))
	c.HandleEvent(readEnter(42, 0))
	c.HandleEvent(readExit(42, 5))

	assert.Empty(t, term.detections)
	phase, _ := store.Get(42)
	assert.Equal(t, PhaseIdle, phase)
}

func TestEINTRRetryable(t *testing.T) {
	c, store, term := newTestClassifier(t)

	c.HandleEvent(readEnter(42, 0))
	c.HandleEvent(readExit(42, -int64(unix.EINTR)))

	assert.Empty(t, term.detections)
	phase, _ := store.Get(42)
	assert.Equal(t, PhaseIdle, phase)
}

func TestDuplicateFatalExitFiresOnce(t *testing.T) {
	c, _, term := newTestClassifier(t)

	c.HandleEvent(readEnter(42, 0))
	c.HandleEvent(readExit(42, 0))
	// Duplicate fatal exit racing in: phase is already idle, must not
	// re-fire.
	c.HandleEvent(readExit(42, 0))

	assert.Len(t, term.detections, 1)
}

func TestSuccessfulReadDoesNotFire(t *testing.T) {
	c, _, term := newTestClassifier(t)

	c.HandleEvent(readEnter(42, 0))
	c.HandleEvent(readExit(42, 4096))

	assert.Empty(t, term.detections)
}

func TestProcExitReclaimsState(t *testing.T) {
	c, store, _ := newTestClassifier(t)

	c.HandleEvent(readEnter(42, 0))
	require.Equal(t, 1, store.Len())

	c.HandleEvent(procExit(42))
	assert.Equal(t, 0, store.Len())

	// Reclaim is idempotent.
	c.HandleEvent(procExit(42))
	assert.Equal(t, 0, store.Len())
}

func TestReusedThreadIDStartsFresh(t *testing.T) {
	c, store, term := newTestClassifier(t)

	c.HandleEvent(readEnter(42, 0))
	c.HandleEvent(procExit(42))

	// A new process reusing tid 42 must not inherit the old phase: its
	// first fatal exit arrives with no entry recorded and is a no-op.
	_, ok := store.Get(42)
	require.False(t, ok)
	c.HandleEvent(readExit(42, 0))
	assert.Empty(t, term.detections)
}

func TestCustomRetryableSet(t *testing.T) {
	store := NewStore(0)
	term := &fakeTerminator{}
	retryable, err := ParseErrnoSet([]string{"EINTR", "EAGAIN", "EIO"})
	require.NoError(t, err)

	c := NewClassifier(Config{
		TargetComm: testComm,
		TargetFD:   0,
		Retryable:  retryable,
	}, store, term, quietLogger())

	c.HandleEvent(readEnter(1, 0))
	c.HandleEvent(readExit(1, -int64(unix.EIO)))
	assert.Empty(t, term.detections)

	c.HandleEvent(readEnter(1, 0))
	c.HandleEvent(readExit(1, -int64(unix.EBADF)))
	require.Len(t, term.detections, 1)
	assert.Equal(t, unix.EBADF, term.detections[0].Errno)
}

func TestNonZeroTargetDescriptor(t *testing.T) {
	store := NewStore(0)
	term := &fakeTerminator{}
	c := NewClassifier(Config{
		TargetComm: testComm,
		TargetFD:   5,
	}, store, term, quietLogger())

	c.HandleEvent(readEnter(1, 0))
	c.HandleEvent(readExit(1, 0))
	assert.Empty(t, term.detections)

	c.HandleEvent(readEnter(1, 5))
	c.HandleEvent(readExit(1, 0))
	assert.Len(t, term.detections, 1)
}

func TestExitPathNeverDropsAtCapacity(t *testing.T) {
	store := NewStore(1)
	term := &fakeTerminator{}
	c := NewClassifier(Config{
		TargetComm: testComm,
		TargetFD:   0,
	}, store, term, quietLogger())

	// The store is full with the one thread we track; the exit transition
	// updates that existing entry and must never count as a drop.
	c.HandleEvent(readEnter(1, 0))
	require.Equal(t, 1, store.Len())
	c.HandleEvent(readExit(1, 0))

	assert.Equal(t, uint64(0), store.Drops())
	require.Len(t, term.detections, 1)
	phase, _ := store.Get(1)
	assert.Equal(t, PhaseIdle, phase)
}

func TestParseErrnoSet(t *testing.T) {
	set, err := ParseErrnoSet([]string{"eintr", "EWOULDBLOCK"})
	require.NoError(t, err)
	assert.True(t, set.Contains(unix.EINTR))
	assert.True(t, set.Contains(unix.EAGAIN)) // EWOULDBLOCK aliases EAGAIN

	_, err = ParseErrnoSet([]string{"ENOTANERRNO"})
	assert.Error(t, err)
}
