package vm

import "fmt"

// Sv32 geometry.
const (
	PageShift    = 12
	PageSize     = 1 << PageShift
	VPNBits      = 10
	NumLevels    = 2
	PTESize      = 4
	ptesPerTable = 1 << VPNBits

	// PAddrBits is the width of a physical address. A PTE holds a 22-bit PPN.
	PAddrBits = 34
	MaxPAddr  = uint64(1)<<PAddrBits - 1
)

// Level is the page-table depth a translation was resolved at. A higher level
// covers a larger, aligned region.
type Level int

// Levels supported by Sv32.
const (
	LevelPage     Level = 0 // 4 KiB page
	LevelMegapage Level = 1 // 4 MiB superpage
)

// OffsetBits returns the width of the in-page offset at the level.
func (l Level) OffsetBits() uint {
	return PageShift + uint(l)*VPNBits
}

// OffsetMask returns the mask selecting the in-page offset at the level.
func (l Level) OffsetMask() uint32 {
	return uint32(1)<<l.OffsetBits() - 1
}

// PageSize returns the number of bytes a page at the level spans.
func (l Level) PageSize() uint64 {
	return uint64(1) << l.OffsetBits()
}

// Valid reports whether the level exists in Sv32.
func (l Level) Valid() bool {
	return l == LevelPage || l == LevelMegapage
}

func (l Level) String() string {
	switch l {
	case LevelPage:
		return "4K"
	case LevelMegapage:
		return "4M"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// SplitAddr splits a virtual address into the virtual page number and the
// in-page offset, using the offset width of the given level.
func SplitAddr(vAddr uint32, level Level) (vpn uint32, offset uint32) {
	return vAddr >> level.OffsetBits(), vAddr & level.OffsetMask()
}

// vpnIndex returns the page-table index of vAddr at the given level.
func vpnIndex(vAddr uint32, level Level) uint32 {
	return (vAddr >> level.OffsetBits()) & (ptesPerTable - 1)
}

// ASID is an address-space identifier. Sv32 provides 9 bits.
type ASID uint16

// MaxASID is the largest ASID Sv32 can encode.
const MaxASID ASID = 1<<9 - 1

// SATP is the value of the satp CSR in Sv32 format.
type SATP uint32

const (
	satpModeBit   = 31
	satpASIDShift = 22
	satpPPNMask   = 1<<22 - 1
)

// MakeSATP composes a satp value that enables Sv32 translation.
func MakeSATP(asid ASID, rootPPN uint32) SATP {
	return SATP(1<<satpModeBit |
		uint32(asid&MaxASID)<<satpASIDShift |
		rootPPN&satpPPNMask)
}

// Enabled reports whether Sv32 translation is on. A zero mode is Bare.
func (s SATP) Enabled() bool {
	return s>>satpModeBit&1 == 1
}

// ASID returns the address-space identifier field.
func (s SATP) ASID() ASID {
	return ASID(uint32(s)>>satpASIDShift) & MaxASID
}

// RootPPN returns the physical page number of the root page table.
func (s SATP) RootPPN() uint32 {
	return uint32(s) & satpPPNMask
}

// Root returns the physical address of the root page table.
func (s SATP) Root() uint64 {
	return uint64(s.RootPPN()) << PageShift
}
