//go:build linux
// +build linux

package platform

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go -cc clang -cflags "-O2 -g -Wall -Werror" readmon ../bpf/readmon.c -- -I../bpf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/readguard/readguard/types"
)

// LinuxMonitor subscribes to the read entry/exit and process-exit
// tracepoints and decodes ring buffer records into ReadEvents.
type LinuxMonitor struct {
	cfg  MonitorConfig
	out  chan<- types.ReadEvent
	log  *logrus.Logger
	objs readmonObjects

	stopOnce sync.Once
	stopChan chan struct{}
	reader   *ringbuf.Reader
}

// NewMonitor creates a monitor that delivers decoded events to out.
func NewMonitor(cfg MonitorConfig, out chan<- types.ReadEvent, log *logrus.Logger) (Monitor, error) {
	if cfg.TargetComm == "" {
		return nil, fmt.Errorf("target executable name is required")
	}
	if len(cfg.TargetComm) >= commLen {
		// The kernel truncates task comms to 15 chars plus NUL; a longer
		// filter string would never match anything.
		return nil, fmt.Errorf("target comm %q exceeds %d characters", cfg.TargetComm, commLen-1)
	}
	return &LinuxMonitor{
		cfg:      cfg,
		out:      out,
		log:      log,
		stopChan: make(chan struct{}),
	}, nil
}

const commLen = 16

// Start loads the BPF objects, attaches the three tracepoints, and reads
// the ring buffer until Stop is called. All attachment failures are fatal:
// a monitor that cannot see every probe cannot classify correctly, so there
// is no partial-operation mode.
func (m *LinuxMonitor) Start() error {
	if err := rlimit.RemoveMemlock(); err != nil {
		return errors.Wrap(err, "failed to remove memlock limit")
	}

	if err := loadReadmonObjects(&m.objs, nil); err != nil {
		return errors.Wrap(err, "failed to load BPF objects")
	}
	defer m.objs.Close()

	// Publish the comm filter before any probe attaches, so the very first
	// event delivered is already filtered.
	var comm [commLen]byte
	copy(comm[:], m.cfg.TargetComm)
	key := uint32(0)
	if err := m.objs.TargetComm.Put(&key, &comm); err != nil {
		return errors.Wrap(err, "failed to set target comm filter")
	}

	tpEnter, err := link.Tracepoint("syscalls", "sys_enter_read", m.objs.TraceEnterRead, nil)
	if err != nil {
		return errors.Wrap(err, "failed to attach sys_enter_read tracepoint")
	}
	defer tpEnter.Close()

	tpExit, err := link.Tracepoint("syscalls", "sys_exit_read", m.objs.TraceExitRead, nil)
	if err != nil {
		return errors.Wrap(err, "failed to attach sys_exit_read tracepoint")
	}
	defer tpExit.Close()

	tpSched, err := link.Tracepoint("sched", "sched_process_exit", m.objs.TraceSchedExit, nil)
	if err != nil {
		return errors.Wrap(err, "failed to attach sched_process_exit tracepoint")
	}
	defer tpSched.Close()

	reader, err := ringbuf.NewReader(m.objs.Events)
	if err != nil {
		return errors.Wrap(err, "failed to create ring buffer reader")
	}
	m.reader = reader
	defer reader.Close()

	m.log.WithField("target", m.cfg.TargetComm).Info("kernel probes attached")

	var ev types.ReadEvent
	for {
		record, err := reader.Read()
		if err != nil {
			if err == ringbuf.ErrClosed {
				return nil
			}
			m.log.WithError(err).Error("error reading from ring buffer")
			continue
		}

		if err := binary.Read(bytes.NewReader(record.RawSample), binary.LittleEndian, &ev); err != nil {
			m.log.WithError(err).Error("failed to parse event record")
			continue
		}

		select {
		case m.out <- ev:
		case <-m.stopChan:
			return nil
		}
	}
}

func (m *LinuxMonitor) Stop() error {
	m.stopOnce.Do(func() {
		close(m.stopChan)
		if m.reader != nil {
			m.reader.Close()
		}
	})
	return nil
}
