package mmu

import (
	"errors"
	"fmt"

	"github.com/sarchlab/rvtlb/mem/vm"
)

// ErrAccessDenied is wrapped by a PageFault raised because the page exists but
// does not grant the access.
var ErrAccessDenied = errors.New("access denied")

// ErrNegativeLength is returned by Read for a negative byte count.
var ErrNegativeLength = errors.New("negative length")

// Cause is a RISC-V exception code.
type Cause uint32

// Page fault causes.
const (
	CauseFetchPageFault Cause = 12
	CauseLoadPageFault  Cause = 13
	CauseStorePageFault Cause = 15
)

func (c Cause) String() string {
	switch c {
	case CauseFetchPageFault:
		return "instruction page fault"
	case CauseLoadPageFault:
		return "load page fault"
	case CauseStorePageFault:
		return "store page fault"
	default:
		return fmt.Sprintf("Cause(%d)", uint32(c))
	}
}

func causeOf(access vm.AccessKind) Cause {
	switch access {
	case vm.AccessFetch:
		return CauseFetchPageFault
	case vm.AccessStore:
		return CauseStorePageFault
	default:
		return CauseLoadPageFault
	}
}

// A PageFault is the trap an access raises when it cannot be translated. The
// trap value (stval) is VAddr.
type PageFault struct {
	Cause  Cause
	VAddr  uint32
	Access vm.AccessKind
	Mode   vm.PrivMode
	Err    error
}

func (f *PageFault) Error() string {
	return fmt.Sprintf("%s at 0x%08x (%s in %s mode): %v",
		f.Cause, f.VAddr, f.Access, f.Mode, f.Err)
}

func (f *PageFault) Unwrap() error {
	return f.Err
}
