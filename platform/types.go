package platform

// Monitor defines what we need from the kernel event subscription. On Linux
// it is implemented with eBPF tracepoints; the interface exists so the
// tracker can be driven by synthetic events in tests and so the tree still
// compiles on development machines without eBPF support.
type Monitor interface {
	// Start attaches the probes and delivers decoded events to the channel
	// passed at construction until Stop is called. Blocks.
	Start() error
	Stop() error
}

// MonitorConfig holds configuration for creating a new monitor.
type MonitorConfig struct {
	// TargetComm is the executable name filtered in-kernel. Events for any
	// other comm are never delivered, so no userspace state is ever touched
	// for unrelated processes.
	TargetComm string

	// RingBufPages tunes the ring buffer size, in pages. Zero means the
	// default.
	RingBufPages int
}
