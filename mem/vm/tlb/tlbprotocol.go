package tlb

import "github.com/sarchlab/rvtlb/mem/vm"

// A FlushReq selects the entries to invalidate, following sfence.vma.
//
// Without an address and an ASID, every entry is selected. With an address,
// only entries whose page covers it are selected. With an ASID, only
// non-global entries of that address space are selected.
type FlushReq struct {
	VAddr    uint32
	HasVAddr bool
	ASID     vm.ASID
	HasASID  bool
}

// Selects reports whether the request invalidates e.
func (r *FlushReq) Selects(e vm.TLBEntry) bool {
	if r.HasASID && (e.Global || e.ASID != r.ASID) {
		return false
	}

	if r.HasVAddr && !e.Covers(r.VAddr) {
		return false
	}

	return true
}

// IsGlobal reports whether the request flushes everything.
func (r *FlushReq) IsGlobal() bool {
	return !r.HasVAddr && !r.HasASID
}

// FlushReqBuilder can build TLB flush requests
type FlushReqBuilder struct {
	vAddr    uint32
	hasVAddr bool
	asid     vm.ASID
	hasASID  bool
}

// WithVAddr limits the flush to entries covering vAddr.
func (b FlushReqBuilder) WithVAddr(vAddr uint32) FlushReqBuilder {
	b.vAddr = vAddr
	b.hasVAddr = true

	return b
}

// WithASID limits the flush to non-global entries of asid.
func (b FlushReqBuilder) WithASID(asid vm.ASID) FlushReqBuilder {
	b.asid = asid
	b.hasASID = true

	return b
}

// Build creates a new FlushReq
func (b FlushReqBuilder) Build() *FlushReq {
	return &FlushReq{
		VAddr:    b.vAddr,
		HasVAddr: b.hasVAddr,
		ASID:     b.asid,
		HasASID:  b.hasASID,
	}
}
