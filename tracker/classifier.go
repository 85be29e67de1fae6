package tracker

import (
	"bytes"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/readguard/readguard/types"
)

// Config holds the classification policy.
type Config struct {
	// TargetComm is re-checked on every event even though the kernel
	// already filters. State materialization must never depend on the mere
	// arrival of an event: a misloaded filter map would otherwise grow
	// state for every reader on the system.
	TargetComm string

	// TargetFD is the descriptor treated as the monitored input.
	TargetFD int64

	// Retryable are errnos that do not indicate a stuck reader.
	Retryable ErrnoSet
}

// Classifier advances per-thread phases on kernel events and fires the
// terminator when a read of the target descriptor comes back fatal.
//
// Events for one thread arrive in syscall order (a read's exit always
// follows its entry, and a blocking read cannot interleave with another
// read on the same thread), so the classifier needs no per-thread locking
// beyond the store's own synchronization.
type Classifier struct {
	cfg   Config
	store *Store
	term  Terminator
	diag  *logrus.Logger
}

func NewClassifier(cfg Config, store *Store, term Terminator, diag *logrus.Logger) *Classifier {
	if cfg.Retryable == nil {
		cfg.Retryable = DefaultRetryable()
	}
	return &Classifier{
		cfg:   cfg,
		store: store,
		term:  term,
		diag:  diag,
	}
}

// HandleEvent processes one kernel event. Events that match no transition
// are no-ops, never errors.
func (c *Classifier) HandleEvent(ev types.ReadEvent) {
	comm := string(bytes.TrimRight(ev.Comm[:], "\x00"))
	if comm != c.cfg.TargetComm {
		return
	}

	switch ev.EventType {
	case types.EVENT_READ_ENTER:
		eventsTotal.WithLabelValues("read_enter").Inc()
		c.handleEnter(ev)
	case types.EVENT_READ_EXIT:
		eventsTotal.WithLabelValues("read_exit").Inc()
		c.handleExit(ev, comm)
	case types.EVENT_PROC_EXIT:
		eventsTotal.WithLabelValues("proc_exit").Inc()
		c.reclaim(ev.Tid, "exit")
	}
}

func (c *Classifier) handleEnter(ev types.ReadEvent) {
	phase := PhaseIdle
	if ev.FD == c.cfg.TargetFD {
		phase = PhaseReadingTarget
	}
	if !c.store.Set(ev.Tid, phase) {
		c.reportDrop(ev.Tid)
	}
}

func (c *Classifier) handleExit(ev types.ReadEvent, comm string) {
	prev, ok := c.store.Get(ev.Tid)
	if !ok {
		// No entry preceded this exit (monitor started mid-call). Creating
		// an entry here would let a cheap existence check become the
		// trigger for allocation; leave the thread unset until its next
		// entry event.
		return
	}

	if prev != PhaseReadingTarget {
		// Already idle: the returning read targeted some other descriptor,
		// or a duplicate exit raced in after a detection. Idempotent.
		return
	}

	// Phase moves to idle before any action fires, so a duplicate fatal
	// exit for the same thread can never fire twice. Set on an existing
	// key cannot drop, and Get just found one.
	c.store.Set(ev.Tid, PhaseIdle)

	kind, errno, fatal := classifyReturn(ev.Ret, c.cfg.Retryable)
	if !fatal {
		return
	}

	c.term.Terminate(Detection{
		Time:  time.Now(),
		Kind:  kind,
		Pid:   ev.Pid,
		Tid:   ev.Tid,
		UID:   ev.UID,
		Comm:  comm,
		Errno: errno,
	})
}

// classifyReturn decides whether a read return value indicates a stuck
// reader. ret follows kernel convention: >0 bytes read, 0 EOF, <0 is
// -errno.
func classifyReturn(ret int64, retryable ErrnoSet) (Kind, unix.Errno, bool) {
	switch {
	case ret > 0:
		return "", 0, false
	case ret == 0:
		return KindEOF, 0, true
	default:
		errno := unix.Errno(-ret)
		if retryable.Contains(errno) {
			return "", 0, false
		}
		return KindIOError, errno, true
	}
}

func (c *Classifier) reclaim(tid uint32, reason string) {
	c.store.Remove(tid)
	reclaimsTotal.WithLabelValues(reason).Inc()
}

// reportDrop surfaces store exhaustion on the diagnostic stream. A drop
// means this thread's classification can no longer be trusted; the
// operator should restart the monitor.
func (c *Classifier) reportDrop(tid uint32) {
	stateDropsTotal.Inc()
	c.diag.WithFields(logrus.Fields{
		"tid":         tid,
		"store_len":   c.store.Len(),
		"total_drops": c.store.Drops(),
	}).Error("state store at capacity, classification state dropped; restart the monitor")
}
