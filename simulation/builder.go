package simulation

import (
	"github.com/rs/xid"

	"github.com/sarchlab/rvtlb/datarecording"
	"github.com/sarchlab/rvtlb/instrumentation/hooking"
	"github.com/sarchlab/rvtlb/mem/mem"
	"github.com/sarchlab/rvtlb/mem/trace"
	"github.com/sarchlab/rvtlb/mem/vm"
	"github.com/sarchlab/rvtlb/mem/vm/mmu"
	"github.com/sarchlab/rvtlb/mem/vm/tlb"
	"github.com/sarchlab/rvtlb/monitoring"
	"github.com/sarchlab/rvtlb/workload"
)

// Builder can be used to build a simulation.
type Builder struct {
	name         string
	numEntries   int
	memorySize   uint64
	monitorOn    bool
	monitorPort  int
	dataRecorder datarecording.DataRecorder
	hooks        []hooking.Hook
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		name:       "Hart0",
		numEntries: 32,
		memorySize: 64 * mem.MB,
		monitorOn:  true,
	}
}

// WithName sets the name of the hart. The MMU takes the name and the TLB is
// called <name>.TLB.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithNumEntries sets the capacity of each TLB store.
func (b Builder) WithNumEntries(n int) Builder {
	b.numEntries = n
	return b
}

// WithMemorySize sets the size of the guest physical memory.
func (b Builder) WithMemorySize(size uint64) Builder {
	b.memorySize = size
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithDataRecorder makes the simulation record TLB events and run metadata
// into r. The simulation closes r on Terminate.
func (b Builder) WithDataRecorder(r datarecording.DataRecorder) Builder {
	b.dataRecorder = r
	return b
}

// WithHook attaches an extra hook to the TLB, such as a vm.TLBTracer.
func (b Builder) WithHook(h hooking.Hook) Builder {
	b.hooks = append(b.hooks, h)
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if b.memorySize < vm.PageSize {
		panic("memory must hold at least one page")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		id:            xid.New().String(),
		compNameIndex: make(map[string]int),
		dataRecorder:  b.dataRecorder,
	}

	tlbBuilder := tlb.MakeBuilder().WithNumEntries(b.numEntries)
	if s.dataRecorder != nil {
		tlbBuilder = tlbBuilder.WithHook(trace.NewDBTracer(s.dataRecorder))

		s.execRecorder = datarecording.NewExecRecorder(s.dataRecorder)
		s.execRecorder.Start()
	}

	for _, h := range b.hooks {
		tlbBuilder = tlbBuilder.WithHook(h)
	}

	storage := mem.NewStorage(b.memorySize)
	s.tlb = tlbBuilder.Build(b.name + ".TLB")
	s.mmu = mmu.MakeBuilder().
		WithStorage(storage).
		WithTLB(s.tlb).
		Build(b.name)
	s.machine = workload.NewMachine(s.mmu,
		vm.NewFrameAllocator(storage, 0, b.memorySize))

	s.RegisterComponent(s.mmu)
	s.RegisterComponent(s.tlb)

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}

		s.monitor.RegisterComponent(s.mmu)
		s.monitor.RegisterTLB(s.tlb)
		s.machine.WithLocker(s.monitor.Locker())
		s.monitorURL = s.monitor.StartServer()
	}

	return s
}
