// Package simulation assembles a hart's memory system and the services that
// observe it.
package simulation

import (
	"context"
	"errors"

	"github.com/sarchlab/rvtlb/datarecording"
	"github.com/sarchlab/rvtlb/mem/vm/mmu"
	"github.com/sarchlab/rvtlb/mem/vm/tlb"
	"github.com/sarchlab/rvtlb/monitoring"
	"github.com/sarchlab/rvtlb/workload"
)

// A Simulation owns one hart's MMU and the recorder and monitor attached to
// it.
type Simulation struct {
	id string

	machine *workload.Machine
	mmu     *mmu.MMU
	tlb     *tlb.TLB

	dataRecorder datarecording.DataRecorder
	execRecorder *datarecording.ExecRecorder
	monitor      *monitoring.Monitor
	monitorURL   string

	components    []monitoring.Component
	compNameIndex map[string]int
}

// ID returns the unique ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Machine returns the machine workloads run on.
func (s *Simulation) Machine() *workload.Machine {
	return s.machine
}

// MMU returns the hart's MMU.
func (s *Simulation) MMU() *mmu.MMU {
	return s.mmu
}

// TLB returns the hart's TLB.
func (s *Simulation) TLB() *tlb.TLB {
	return s.tlb
}

// GetDataRecorder returns the data recorder, or nil if nothing is recorded.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetMonitor returns the monitor, or nil if monitoring is disabled.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// MonitorURL returns the address the monitor serves on.
func (s *Simulation) MonitorURL() string {
	return s.monitorURL
}

// RecordExecInfo stores a property of the run, if a recorder is attached.
func (s *Simulation) RecordExecInfo(property, value string) {
	if s.execRecorder != nil {
		s.execRecorder.Record(property, value)
	}
}

// RegisterComponent registers a component with the simulation.
func (s *Simulation) RegisterComponent(c monitoring.Component) {
	compName := c.Name()
	if _, found := s.compNameIndex[compName]; found {
		panic("component " + compName + " already registered")
	}

	s.components = append(s.components, c)
	s.compNameIndex[compName] = len(s.components) - 1
}

// GetComponentByName returns the component with the given name, or nil.
func (s *Simulation) GetComponentByName(name string) monitoring.Component {
	i, found := s.compNameIndex[name]
	if !found {
		return nil
	}

	return s.components[i]
}

// Components returns all registered components.
func (s *Simulation) Components() []monitoring.Component {
	return s.components
}

// Terminate stops the monitor, destroys the TLB, records the end of the run
// and closes the recorder. The simulation cannot be used afterwards.
func (s *Simulation) Terminate() error {
	var err error

	if s.monitor != nil {
		err = s.monitor.StopServer(context.Background())
	}

	s.tlb.Destroy()

	if s.dataRecorder != nil {
		s.execRecorder.End()
		s.dataRecorder.Flush()
		err = errors.Join(err, s.dataRecorder.Close())
	}

	return err
}
