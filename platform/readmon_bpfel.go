// Code generated by bpf2go; DO NOT EDIT.
//go:build 386 || amd64 || arm || arm64 || loong64 || mips64le || mipsle || ppc64le || riscv64

package platform

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"github.com/cilium/ebpf"
)

// loadReadmon returns the embedded CollectionSpec for readmon.
func loadReadmon() (*ebpf.CollectionSpec, error) {
	reader := bytes.NewReader(_ReadmonBytes)
	spec, err := ebpf.LoadCollectionSpecFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("can't load readmon: %w", err)
	}

	return spec, err
}

// loadReadmonObjects loads readmon and converts it into a struct.
//
// The following types are suitable as obj argument:
//
//	*readmonObjects
//	*readmonPrograms
//	*readmonMaps
//
// See ebpf.CollectionSpec.LoadAndAssign documentation for details.
func loadReadmonObjects(obj interface{}, opts *ebpf.CollectionOptions) error {
	spec, err := loadReadmon()
	if err != nil {
		return err
	}

	return spec.LoadAndAssign(obj, opts)
}

// readmonSpecs contains maps and programs before they are loaded into the kernel.
//
// It can be passed ebpf.CollectionSpec.Assign.
type readmonSpecs struct {
	readmonProgramSpecs
	readmonMapSpecs
}

// readmonSpecs contains programs before they are loaded into the kernel.
//
// It can be passed ebpf.CollectionSpec.Assign.
type readmonProgramSpecs struct {
	TraceEnterRead *ebpf.ProgramSpec `ebpf:"trace_enter_read"`
	TraceExitRead  *ebpf.ProgramSpec `ebpf:"trace_exit_read"`
	TraceSchedExit *ebpf.ProgramSpec `ebpf:"trace_sched_exit"`
}

// readmonMapSpecs contains maps before they are loaded into the kernel.
//
// It can be passed ebpf.CollectionSpec.Assign.
type readmonMapSpecs struct {
	Events     *ebpf.MapSpec `ebpf:"events"`
	TargetComm *ebpf.MapSpec `ebpf:"target_comm"`
}

// readmonObjects contains all objects after they have been loaded into the kernel.
//
// It can be passed to loadReadmonObjects or ebpf.CollectionSpec.LoadAndAssign.
type readmonObjects struct {
	readmonPrograms
	readmonMaps
}

func (o *readmonObjects) Close() error {
	return _ReadmonClose(
		&o.readmonPrograms,
		&o.readmonMaps,
	)
}

// readmonMaps contains all maps after they have been loaded into the kernel.
//
// It can be passed to loadReadmonObjects or ebpf.CollectionSpec.LoadAndAssign.
type readmonMaps struct {
	Events     *ebpf.Map `ebpf:"events"`
	TargetComm *ebpf.Map `ebpf:"target_comm"`
}

func (m *readmonMaps) Close() error {
	return _ReadmonClose(
		m.Events,
		m.TargetComm,
	)
}

// readmonPrograms contains all programs after they have been loaded into the kernel.
//
// It can be passed to loadReadmonObjects or ebpf.CollectionSpec.LoadAndAssign.
type readmonPrograms struct {
	TraceEnterRead *ebpf.Program `ebpf:"trace_enter_read"`
	TraceExitRead  *ebpf.Program `ebpf:"trace_exit_read"`
	TraceSchedExit *ebpf.Program `ebpf:"trace_sched_exit"`
}

func (p *readmonPrograms) Close() error {
	return _ReadmonClose(
		p.TraceEnterRead,
		p.TraceExitRead,
		p.TraceSchedExit,
	)
}

func _ReadmonClose(closers ...io.Closer) error {
	for _, closer := range closers {
		if err := closer.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Do not access this directly.
//
//go:embed readmon_bpfel.o
var _ReadmonBytes []byte
