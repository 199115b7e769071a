// Package tlb provides the translation lookaside buffer that caches Sv32
// translations for the instruction-fetch and data-access paths.
package tlb

import (
	"log"

	"github.com/sarchlab/rvtlb/instrumentation/hooking"
	"github.com/sarchlab/rvtlb/mem/vm"
	"github.com/sarchlab/rvtlb/mem/vm/tlb/internal"
)

// Hook positions raised by a TLB. The hook item is a vm.TLBEvent.
var (
	HookPosHit    = &hooking.HookPos{Name: "hit"}
	HookPosMiss   = &hooking.HookPos{Name: "miss"}
	HookPosDenied = &hooking.HookPos{Name: "denied"}
	HookPosRefill = &hooking.HookPos{Name: "refill"}
	HookPosEvict  = &hooking.HookPos{Name: "evict"}
	HookPosFlush  = &hooking.HookPos{Name: "flush"}
)

// TLB owns one entry store for instruction fetches and one for data
// accesses. Both have the same capacity.
//
// A TLB is driven by the single goroutine that runs the hart it belongs to.
// Harts do not share a TLB.
type TLB struct {
	*hooking.HookableBase

	name string
	itlb internal.Store
	dtlb internal.Store

	stats     Stats
	seq       uint64
	destroyed bool
}

// Name returns the name of the TLB.
func (t *TLB) Name() string {
	return t.name
}

func (t *TLB) mustBeAlive() {
	if t.destroyed {
		log.Panicf("TLB %s used after Destroy", t.name)
	}
}

func (t *TLB) store(class vm.AccessClass) internal.Store {
	if class == vm.ClassInstruction {
		return t.itlb
	}

	return t.dtlb
}

func (t *TLB) classStats(class vm.AccessClass) *ClassStats {
	if class == vm.ClassInstruction {
		return &t.stats.Instruction
	}

	return &t.stats.Data
}

// Lookup searches the store of the given class for a translation of req.VAddr
// in req.ASID. The oldest matching entry decides the outcome. A matching
// entry that does not grant the access under the request's privilege state
// yields PermissionDenied rather than a miss.
func (t *TLB) Lookup(class vm.AccessClass, req vm.TranslationReq) vm.Result {
	t.mustBeAlive()

	stats := t.classStats(class)

	entry, found := t.store(class).Lookup(req.VAddr, req.ASID)
	if !found {
		stats.Misses++
		t.raise(HookPosMiss, vm.TLBEvent{
			Class: class,
			VAddr: req.VAddr,
			ASID:  req.ASID,
		})

		return vm.MissResult
	}

	if !vm.CheckAccess(entry.Perm, req) {
		stats.Denials++
		t.raise(HookPosDenied, vm.TLBEvent{
			Class: class,
			VAddr: req.VAddr,
			ASID:  req.ASID,
			Entry: entry,
		})

		return vm.Result{Kind: vm.PermissionDenied}
	}

	pAddr := entry.PAddr(req.VAddr)
	stats.Hits++
	t.raise(HookPosHit, vm.TLBEvent{
		Class: class,
		VAddr: req.VAddr,
		PAddr: pAddr,
		ASID:  req.ASID,
		Entry: entry,
	})

	return vm.Result{Kind: vm.Hit, PAddr: pAddr}
}

// Refill caches the walk result tr for the page that req.VAddr falls in,
// tagged with req.ASID. If the store is full, its oldest entry is evicted
// first.
func (t *TLB) Refill(class vm.AccessClass, req vm.TranslationReq, tr vm.Translation) {
	t.mustBeAlive()

	if !tr.Level.Valid() {
		log.Panicf("cannot refill TLB %s with %s translation", t.name, tr.Level)
	}

	stats := t.classStats(class)
	entry := vm.MakeTLBEntry(req.VAddr, req.ASID, tr)

	evicted, hasEvicted := t.store(class).Refill(entry)
	if hasEvicted {
		stats.Evictions++
		t.raise(HookPosEvict, vm.TLBEvent{
			Class: class,
			VAddr: evicted.VPN << evicted.Level.OffsetBits(),
			PAddr: evicted.PPN,
			ASID:  evicted.ASID,
			Entry: evicted,
		})
	}

	stats.Refills++
	t.raise(HookPosRefill, vm.TLBEvent{
		Class: class,
		VAddr: req.VAddr,
		PAddr: entry.PAddr(req.VAddr),
		ASID:  req.ASID,
		Entry: entry,
	})
}

// Flush removes the entries req selects from both stores.
func (t *TLB) Flush(req *FlushReq) {
	t.mustBeAlive()

	for _, class := range []vm.AccessClass{vm.ClassInstruction, vm.ClassData} {
		n := t.store(class).Invalidate(req.Selects)
		t.classStats(class).Invalidations += uint64(n)

		t.raise(HookPosFlush, vm.TLBEvent{
			Class: class,
			VAddr: req.VAddr,
			ASID:  req.ASID,
			Count: n,
		})
	}

	t.stats.Flushes++
}

// FlushAll removes every entry from both stores.
func (t *TLB) FlushAll() {
	t.Flush(FlushReqBuilder{}.Build())
}

// Destroy releases both stores. The TLB cannot be used afterwards.
func (t *TLB) Destroy() {
	t.mustBeAlive()

	t.itlb.Reset()
	t.dtlb.Reset()
	t.itlb = nil
	t.dtlb = nil
	t.destroyed = true
}

// Entries returns the cached entries of a class, oldest first.
func (t *TLB) Entries(class vm.AccessClass) []vm.TLBEntry {
	t.mustBeAlive()
	return t.store(class).Entries()
}

// Len returns the number of entries cached for a class.
func (t *TLB) Len(class vm.AccessClass) int {
	t.mustBeAlive()
	return t.store(class).Len()
}

// Capacity returns the number of entries each store can hold.
func (t *TLB) Capacity() int {
	t.mustBeAlive()
	return t.itlb.Cap()
}

// Stats returns a snapshot of the counters.
func (t *TLB) Stats() Stats {
	return t.stats
}

func (t *TLB) raise(pos *hooking.HookPos, evt vm.TLBEvent) {
	t.seq++

	if t.NumHooks() == 0 {
		return
	}

	evt.Seq = t.seq
	t.InvokeHook(hooking.HookCtx{
		Domain: t,
		Pos:    pos,
		Item:   evt,
	})
}
