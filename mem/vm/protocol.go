// Package vm provides the models for Sv32 address translation.
package vm

import "fmt"

// A TranslationReq describes one access that needs a translation, together
// with the privilege state that decides whether it is allowed.
type TranslationReq struct {
	VAddr  uint32
	Access AccessKind
	Mode   PrivMode
	ASID   ASID

	// SUM permits supervisor loads and stores to user pages.
	SUM bool

	// MXR makes execute-only pages readable.
	MXR bool
}

// Class returns the TLB the request is looked up in.
func (r TranslationReq) Class() AccessClass {
	return r.Access.Class()
}

// A Translation is the result of a successful page-table walk.
type Translation struct {
	// PPN is the physical page base address. Offset bits are zero.
	PPN    uint64
	Level  Level
	Perm   Perm
	Global bool
}

// A TLBEntry is one cached translation.
//
// Level and Perm are set together with VPN and PPN when the entry is created
// and are never changed on their own.
type TLBEntry struct {
	// VPN is the virtual page number at the granularity of Level.
	VPN uint32

	// PPN is the physical page base address. Offset bits are zero.
	PPN    uint64
	Level  Level
	Perm   Perm
	ASID   ASID
	Global bool
}

// MakeTLBEntry builds the entry that caches tr for the page containing vAddr.
func MakeTLBEntry(vAddr uint32, asid ASID, tr Translation) TLBEntry {
	vpn, _ := SplitAddr(vAddr, tr.Level)

	return TLBEntry{
		VPN:    vpn,
		PPN:    tr.PPN,
		Level:  tr.Level,
		Perm:   tr.Perm,
		ASID:   asid,
		Global: tr.Global,
	}
}

// Covers reports whether vAddr falls in the page the entry maps.
func (e TLBEntry) Covers(vAddr uint32) bool {
	vpn, _ := SplitAddr(vAddr, e.Level)
	return vpn == e.VPN
}

// Matches reports whether the entry translates vAddr in address space asid.
func (e TLBEntry) Matches(vAddr uint32, asid ASID) bool {
	return (e.Global || e.ASID == asid) && e.Covers(vAddr)
}

// SameSlot reports whether two entries cache the same mapping, so that one
// replaces the other.
func (e TLBEntry) SameSlot(o TLBEntry) bool {
	return e.VPN == o.VPN &&
		e.Level == o.Level &&
		e.Global == o.Global &&
		(e.Global || e.ASID == o.ASID)
}

// PAddr reconstructs the physical address of vAddr through the entry.
func (e TLBEntry) PAddr(vAddr uint32) uint64 {
	_, offset := SplitAddr(vAddr, e.Level)
	return e.PPN | uint64(offset)
}

func (e TLBEntry) String() string {
	g := ""
	if e.Global {
		g = " g"
	}

	return fmt.Sprintf("vpn=0x%x ppn=0x%x %s %s asid=%d%s",
		e.VPN, e.PPN, e.Level, e.Perm, e.ASID, g)
}

// ResultKind tells how a TLB lookup ended.
type ResultKind int

// Lookup outcomes.
const (
	Miss ResultKind = iota
	Hit
	PermissionDenied
)

func (k ResultKind) String() string {
	switch k {
	case Hit:
		return "hit"
	case PermissionDenied:
		return "denied"
	default:
		return "miss"
	}
}

// A Result is the outcome of a TLB lookup. PAddr is only meaningful on a hit.
type Result struct {
	Kind  ResultKind
	PAddr uint64
}

// MissResult is the result of a lookup that found nothing.
var MissResult = Result{Kind: Miss}
