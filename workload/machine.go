// Package workload drives an MMU with address-translation traffic, either from
// a text script or from a seeded random generator.
package workload

import (
	"fmt"
	"sync"

	"github.com/sarchlab/rvtlb/mem/vm"
	"github.com/sarchlab/rvtlb/mem/vm/mmu"
)

// A Machine is an MMU together with the address spaces a workload installs
// into its memory.
type Machine struct {
	MMU *mmu.MMU

	alloc  *vm.FrameAllocator
	spaces map[vm.ASID]*vm.PageTable
	locker sync.Locker
}

// NewMachine wraps m. Page tables and data frames are allocated from alloc.
func NewMachine(m *mmu.MMU, alloc *vm.FrameAllocator) *Machine {
	return &Machine{
		MMU:    m,
		alloc:  alloc,
		spaces: make(map[vm.ASID]*vm.PageTable),
	}
}

// WithLocker makes workloads hold l while they touch the MMU, so that an
// observer holding l sees a consistent state.
func (mc *Machine) WithLocker(l sync.Locker) *Machine {
	mc.locker = l
	return mc
}

func (mc *Machine) lock() {
	if mc.locker != nil {
		mc.locker.Lock()
	}
}

func (mc *Machine) unlock() {
	if mc.locker != nil {
		mc.locker.Unlock()
	}
}

// Space returns the page table of asid, creating an empty one on first use.
func (mc *Machine) Space(asid vm.ASID) (*vm.PageTable, error) {
	if asid > vm.MaxASID {
		return nil, fmt.Errorf("asid %d exceeds %d", asid, vm.MaxASID)
	}

	if pt, ok := mc.spaces[asid]; ok {
		return pt, nil
	}

	pt, err := vm.NewPageTable(mc.MMU.Storage(), mc.alloc)
	if err != nil {
		return nil, err
	}

	mc.spaces[asid] = pt

	return pt, nil
}

// Switch points satp at the page table of asid.
func (mc *Machine) Switch(asid vm.ASID) error {
	pt, err := mc.Space(asid)
	if err != nil {
		return err
	}

	mc.MMU.SetSATP(pt.SATP(asid))

	return nil
}

// AllocateFrame returns a fresh zeroed data frame.
func (mc *Machine) AllocateFrame() (uint64, error) {
	return mc.alloc.Allocate()
}

// NumSpaces returns the number of address spaces created so far.
func (mc *Machine) NumSpaces() int {
	return len(mc.spaces)
}
