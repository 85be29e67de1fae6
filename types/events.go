// Package types holds the kernel event record shared by the platform
// monitor and the tracker. It has no platform-specific dependencies, so the
// tracker and its tests build without the generated BPF objects.
package types

// Event type constants. These must stay in sync with the values emitted by
// the eBPF program in bpf/readmon.c.
const (
	EVENT_READ_ENTER = 1
	EVENT_READ_EXIT  = 2
	EVENT_PROC_EXIT  = 3
)

// ReadEvent is the fixed-layout record emitted by the eBPF program for
// read-entry, read-exit, and process-exit events. Field order and sizes
// mirror struct event in bpf/readmon.c exactly; it is decoded with
// encoding/binary in little-endian byte order.
type ReadEvent struct {
	Timestamp uint64
	Pid       uint32
	Tid       uint32
	UID       uint32
	EventType uint32

	// FD is the file descriptor argument, valid for EVENT_READ_ENTER.
	FD int64

	// Ret is the raw syscall return value, valid for EVENT_READ_EXIT.
	// Negative values are -errno, per kernel convention.
	Ret int64

	Comm [16]byte
}
