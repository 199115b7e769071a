package mmu

import (
	"log"

	"github.com/sarchlab/rvtlb/mem/mem"
	"github.com/sarchlab/rvtlb/mem/vm"
	"github.com/sarchlab/rvtlb/mem/vm/tlb"
)

// A Builder can build MMUs
type Builder struct {
	tlb     *tlb.TLB
	storage *mem.Storage
	walker  vm.Walker
	mode    vm.PrivMode
}

// MakeBuilder creates a new builder. MMUs start in supervisor mode.
func MakeBuilder() Builder {
	return Builder{
		mode: vm.PrivSupervisor,
	}
}

// WithTLB sets the TLB that the MMU uses. Without one, a TLB with the default
// capacity is created.
func (b Builder) WithTLB(t *tlb.TLB) Builder {
	b.tlb = t
	return b
}

// WithStorage sets the physical memory that the MMU accesses.
func (b Builder) WithStorage(s *mem.Storage) Builder {
	b.storage = s
	return b
}

// WithWalker replaces the Sv32 walker over the storage.
func (b Builder) WithWalker(w vm.Walker) Builder {
	b.walker = w
	return b
}

// WithPrivilege sets the privilege mode the MMU starts in.
func (b Builder) WithPrivilege(mode vm.PrivMode) Builder {
	b.mode = mode
	return b
}

// Build returns a newly created MMU
func (b Builder) Build(name string) *MMU {
	if b.storage == nil {
		log.Panicf("MMU %s needs a storage", name)
	}

	m := &MMU{
		name:    name,
		tlb:     b.tlb,
		storage: b.storage,
		walker:  b.walker,
		mode:    b.mode,
	}

	if m.tlb == nil {
		m.tlb = tlb.MakeBuilder().Build(name + ".TLB")
	}

	if m.walker == nil {
		m.walker = vm.NewWalker(b.storage)
	}

	return m
}
