// Package tracker holds the per-thread read-loop state machine: a bounded
// store of classification phases keyed by thread id, the classifier that
// advances those phases on syscall entry/exit events, and the sweeper that
// reclaims entries for threads that died without an exit notification.
package tracker

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Phase is the per-thread classification state. It is deliberately
// tri-state rather than a boolean: an entry only leaves the store on
// genuine thread exit, never because the thread went idle, so "idle" needs
// a representation distinct from "no entry".
type Phase uint8

const (
	// PhaseUnset is the zero value. A live entry never holds it; it is what
	// callers see before the first read-entry event for a thread.
	PhaseUnset Phase = iota

	// PhaseReadingTarget means the thread's most recent read entry targeted
	// the monitored descriptor and has not returned yet.
	PhaseReadingTarget

	// PhaseIdle means the thread is between reads, or reading some other
	// descriptor.
	PhaseIdle
)

func (p Phase) String() string {
	switch p {
	case PhaseReadingTarget:
		return "reading-target"
	case PhaseIdle:
		return "idle"
	default:
		return "unset"
	}
}

// Kind tags why a detection fired.
type Kind string

const (
	KindIOError Kind = "IOError"
	KindEOF     Kind = "EOF"
)

// Detection describes one fatal classification: a read of the monitored
// descriptor that returned EOF or a non-retryable error.
type Detection struct {
	Time  time.Time
	Kind  Kind
	Pid   uint32
	Tid   uint32
	UID   uint32
	Comm  string
	Errno unix.Errno // zero for KindEOF
}

// Terminator is what the classifier fires on a fatal classification.
// Implementations must not block; the classifier calls this inline on the
// event path.
type Terminator interface {
	Terminate(d Detection)
}

// ErrnoSet is a set of errnos treated as retryable read outcomes.
type ErrnoSet map[unix.Errno]struct{}

func (s ErrnoSet) Contains(e unix.Errno) bool {
	_, ok := s[e]
	return ok
}

func (s ErrnoSet) String() string {
	names := make([]string, 0, len(s))
	for e := range s {
		names = append(names, unix.ErrnoName(e))
	}
	return strings.Join(names, ",")
}

// DefaultRetryable returns the default retryable set: interrupted call and
// would-block. On Linux EWOULDBLOCK aliases EAGAIN.
func DefaultRetryable() ErrnoSet {
	return ErrnoSet{
		unix.EINTR:  {},
		unix.EAGAIN: {},
	}
}

var errnoByName = map[string]unix.Errno{
	"EINTR":       unix.EINTR,
	"EAGAIN":      unix.EAGAIN,
	"EWOULDBLOCK": unix.EWOULDBLOCK,
	"EIO":         unix.EIO,
	"EBADF":       unix.EBADF,
	"EFAULT":      unix.EFAULT,
	"EINVAL":      unix.EINVAL,
	"EISDIR":      unix.EISDIR,
	"ENXIO":       unix.ENXIO,
	"ETIMEDOUT":   unix.ETIMEDOUT,
	"ECONNRESET":  unix.ECONNRESET,
}

// ParseErrnoSet builds an ErrnoSet from symbolic names like "EINTR".
func ParseErrnoSet(names []string) (ErrnoSet, error) {
	set := make(ErrnoSet, len(names))
	for _, name := range names {
		e, ok := errnoByName[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown errno name %q", name)
		}
		set[e] = struct{}{}
	}
	return set, nil
}
