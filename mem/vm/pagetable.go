package vm

import (
	"errors"
	"fmt"

	"github.com/sarchlab/rvtlb/mem/mem"
)

// Page table construction errors.
var (
	ErrAlreadyMapped = errors.New("virtual page already mapped")
	ErrMisaligned    = errors.New("address not aligned to page size")
	ErrInvalidPerm   = errors.New("invalid leaf permissions")
	ErrOutOfFrames   = errors.New("no free physical frames")
	ErrPAddrTooLarge = errors.New("physical address exceeds 34 bits")
)

// A FrameAllocator hands out zeroed 4 KiB physical frames from a range of a
// Storage. Frames are never returned.
type FrameAllocator struct {
	storage *mem.Storage
	next    uint64
	end     uint64
}

// NewFrameAllocator creates an allocator that serves frames in [start, end).
// Both bounds are rounded inwards to page boundaries.
func NewFrameAllocator(storage *mem.Storage, start, end uint64) *FrameAllocator {
	return &FrameAllocator{
		storage: storage,
		next:    (start + PageSize - 1) &^ (PageSize - 1),
		end:     end &^ (PageSize - 1),
	}
}

// Allocate returns the physical address of a fresh, zeroed frame.
func (a *FrameAllocator) Allocate() (uint64, error) {
	if a.next+PageSize > a.end {
		return 0, ErrOutOfFrames
	}

	frame := a.next
	if err := a.storage.Zero(frame, PageSize); err != nil {
		return 0, err
	}

	a.next += PageSize

	return frame, nil
}

// Remaining returns the number of frames that can still be allocated.
func (a *FrameAllocator) Remaining() uint64 {
	if a.next >= a.end {
		return 0
	}

	return (a.end - a.next) / PageSize
}

// A PageTable is one Sv32 address space, stored in guest physical memory so
// that Walk reads it exactly as the hardware walker would.
type PageTable struct {
	storage *mem.Storage
	alloc   *FrameAllocator
	root    uint64
}

// NewPageTable allocates an empty root table.
func NewPageTable(storage *mem.Storage, alloc *FrameAllocator) (*PageTable, error) {
	root, err := alloc.Allocate()
	if err != nil {
		return nil, fmt.Errorf("allocating root page table: %w", err)
	}

	return &PageTable{
		storage: storage,
		alloc:   alloc,
		root:    root,
	}, nil
}

// Root returns the physical address of the root table.
func (pt *PageTable) Root() uint64 {
	return pt.root
}

// SATP returns the satp value that activates this address space under asid.
func (pt *PageTable) SATP(asid ASID) SATP {
	return MakeSATP(asid, uint32(pt.root>>PageShift))
}

// Map installs a leaf mapping of the page at vAddr to the frame at pAddr.
func (pt *PageTable) Map(
	vAddr uint32,
	pAddr uint64,
	level Level,
	perm Perm,
	global bool,
) error {
	if !level.Valid() {
		return fmt.Errorf("%w: level %d", ErrInvalidPerm, level)
	}

	if pAddr > MaxPAddr {
		return fmt.Errorf("%w: 0x%x", ErrPAddrTooLarge, pAddr)
	}

	mask := level.PageSize() - 1
	if uint64(vAddr)&mask != 0 || pAddr&mask != 0 {
		return fmt.Errorf("%w: vaddr 0x%x paddr 0x%x at %s",
			ErrMisaligned, vAddr, pAddr, level)
	}

	if !isLeaf(perm) || (perm.Has(PermW) && !perm.Has(PermR)) {
		return fmt.Errorf("%w: %s", ErrInvalidPerm, perm)
	}

	pteAddr, err := pt.leafSlot(vAddr, level)
	if err != nil {
		return err
	}

	return pt.storage.WriteUint32(pteAddr, makeLeafPTE(pAddr, perm, global))
}

func (pt *PageTable) leafSlot(vAddr uint32, level Level) (uint64, error) {
	rootSlot := pt.root + uint64(vpnIndex(vAddr, LevelMegapage))*PTESize

	pte, err := pt.storage.ReadUint32(rootSlot)
	if err != nil {
		return 0, err
	}

	if level == LevelMegapage {
		if pte&pteV != 0 {
			return 0, fmt.Errorf("%w: 0x%x", ErrAlreadyMapped, vAddr)
		}

		return rootSlot, nil
	}

	var table uint64

	switch {
	case pte&pteV == 0:
		table, err = pt.alloc.Allocate()
		if err != nil {
			return 0, fmt.Errorf("allocating page table: %w", err)
		}

		err = pt.storage.WriteUint32(rootSlot, makePointerPTE(table))
		if err != nil {
			return 0, err
		}
	case isLeaf(Perm(pte & ptePermMask)):
		return 0, fmt.Errorf("%w: 0x%x is inside a megapage",
			ErrAlreadyMapped, vAddr)
	default:
		table = uint64(pte>>ptePPNShift) << PageShift
	}

	slot := table + uint64(vpnIndex(vAddr, LevelPage))*PTESize

	leaf, err := pt.storage.ReadUint32(slot)
	if err != nil {
		return 0, err
	}

	if leaf&pteV != 0 {
		return 0, fmt.Errorf("%w: 0x%x", ErrAlreadyMapped, vAddr)
	}

	return slot, nil
}

// Unmap clears the leaf PTE that maps vAddr. Cached translations are not
// touched; callers must flush the TLB, as software must after changing a
// page table.
func (pt *PageTable) Unmap(vAddr uint32) error {
	table := pt.root

	for level := LevelMegapage; level >= LevelPage; level-- {
		slot := table + uint64(vpnIndex(vAddr, level))*PTESize

		pte, err := pt.storage.ReadUint32(slot)
		if err != nil {
			return err
		}

		if pte&pteV == 0 {
			break
		}

		if isLeaf(Perm(pte & ptePermMask)) {
			return pt.storage.WriteUint32(slot, 0)
		}

		table = uint64(pte>>ptePPNShift) << PageShift
	}

	return fmt.Errorf("%w: 0x%x", ErrPageNotMapped, vAddr)
}

// Walk resolves vAddr through this address space.
func (pt *PageTable) Walk(vAddr uint32) (Translation, error) {
	return Walk(pt.storage, pt.root, vAddr)
}
