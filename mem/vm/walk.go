package vm

import (
	"errors"
	"fmt"

	"github.com/sarchlab/rvtlb/mem/mem"
)

// PTE bits that are not permissions.
const (
	pteV uint32 = 1 << 0
	pteG uint32 = 1 << 5
	pteA uint32 = 1 << 6
	pteD uint32 = 1 << 7

	ptePermMask = uint32(PermR | PermW | PermX | PermU)
	ptePPNShift = 10
)

// Walk failures.
var (
	ErrPageNotMapped       = errors.New("page not mapped")
	ErrInvalidPTE          = errors.New("invalid page table entry")
	ErrMisalignedSuperpage = errors.New("misaligned superpage")
	ErrPageTableOutOfRange = errors.New("page table outside physical memory")
	ErrTranslationDisabled = errors.New("satp is in bare mode")
)

// A Walker resolves virtual addresses through the page tables that satp
// points to. It is consulted on a TLB miss.
type Walker interface {
	Walk(satp SATP, vAddr uint32) (Translation, error)
}

// NewWalker creates a Walker that reads Sv32 page tables from storage.
func NewWalker(storage *mem.Storage) Walker {
	return &sv32Walker{storage: storage}
}

type sv32Walker struct {
	storage *mem.Storage
}

func (w *sv32Walker) Walk(satp SATP, vAddr uint32) (Translation, error) {
	if !satp.Enabled() {
		return Translation{}, ErrTranslationDisabled
	}

	return Walk(w.storage, satp.Root(), vAddr)
}

// Walk resolves vAddr through the Sv32 page table whose root table starts at
// physical address root.
func Walk(storage *mem.Storage, root uint64, vAddr uint32) (Translation, error) {
	table := root

	for level := LevelMegapage; level >= LevelPage; level-- {
		pteAddr := table + uint64(vpnIndex(vAddr, level))*PTESize

		pte, err := storage.ReadUint32(pteAddr)
		if err != nil {
			return Translation{}, fmt.Errorf("%w: pte at 0x%x for vaddr 0x%x",
				ErrPageTableOutOfRange, pteAddr, vAddr)
		}

		if pte&pteV == 0 {
			return Translation{}, fmt.Errorf("%w: vaddr 0x%x",
				ErrPageNotMapped, vAddr)
		}

		perm := Perm(pte & ptePermMask)
		if perm.Has(PermW) && !perm.Has(PermR) {
			return Translation{}, fmt.Errorf("%w: 0x%08x for vaddr 0x%x",
				ErrInvalidPTE, pte, vAddr)
		}

		ppn := pte >> ptePPNShift

		if !isLeaf(perm) {
			table = uint64(ppn) << PageShift
			continue
		}

		if level == LevelMegapage && ppn&(ptesPerTable-1) != 0 {
			return Translation{}, fmt.Errorf("%w: 0x%08x for vaddr 0x%x",
				ErrMisalignedSuperpage, pte, vAddr)
		}

		return Translation{
			PPN:    uint64(ppn) << PageShift,
			Level:  level,
			Perm:   perm,
			Global: pte&pteG != 0,
		}, nil
	}

	return Translation{}, fmt.Errorf("%w: no leaf for vaddr 0x%x",
		ErrPageNotMapped, vAddr)
}

func isLeaf(perm Perm) bool {
	return perm&(PermR|PermX) != 0
}

func makeLeafPTE(pAddr uint64, perm Perm, global bool) uint32 {
	pte := uint32(pAddr>>PageShift)<<ptePPNShift |
		uint32(perm)&ptePermMask |
		pteV | pteA | pteD
	if global {
		pte |= pteG
	}

	return pte
}

func makePointerPTE(table uint64) uint32 {
	return uint32(table>>PageShift)<<ptePPNShift | pteV
}
