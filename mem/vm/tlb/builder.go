package tlb

import (
	"log"

	"github.com/sarchlab/rvtlb/instrumentation/hooking"
	"github.com/sarchlab/rvtlb/mem/vm/tlb/internal"
)

// A Builder can build TLBs
type Builder struct {
	numEntries int
	hooks      []hooking.Hook
}

// MakeBuilder returns a Builder
func MakeBuilder() Builder {
	return Builder{
		numEntries: 32,
	}
}

// WithNumEntries sets the number of entries in each of the instruction and
// data stores.
func (b Builder) WithNumEntries(n int) Builder {
	b.numEntries = n
	return b
}

// WithHook registers a hook on the TLB to build.
func (b Builder) WithHook(hook hooking.Hook) Builder {
	b.hooks = append(b.hooks[:len(b.hooks):len(b.hooks)], hook)
	return b
}

// Build creates a new TLB
func (b Builder) Build(name string) *TLB {
	if b.numEntries <= 0 {
		log.Panicf("TLB %s needs at least one entry, got %d",
			name, b.numEntries)
	}

	t := &TLB{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		itlb:         internal.NewStore(b.numEntries),
		dtlb:         internal.NewStore(b.numEntries),
	}

	for _, h := range b.hooks {
		t.AcceptHook(h)
	}

	return t
}
