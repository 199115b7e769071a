package vm

import (
	"fmt"
	"strings"
)

// Perm is a set of page permissions. Bit positions follow the Sv32 PTE.
type Perm uint32

// Permission bits.
const (
	PermR Perm = 1 << 1
	PermW Perm = 1 << 2
	PermX Perm = 1 << 3
	PermU Perm = 1 << 4

	PermRW  = PermR | PermW
	PermRX  = PermR | PermX
	PermRWX = PermR | PermW | PermX
)

// Has reports whether all the bits in q are present.
func (p Perm) Has(q Perm) bool {
	return p&q == q
}

func (p Perm) String() string {
	var b strings.Builder

	for _, f := range []struct {
		bit Perm
		c   byte
	}{{PermR, 'r'}, {PermW, 'w'}, {PermX, 'x'}, {PermU, 'u'}} {
		if p.Has(f.bit) {
			b.WriteByte(f.c)
		} else {
			b.WriteByte('-')
		}
	}

	return b.String()
}

// ParsePerm parses the form produced by String, e.g. "rw-u". Dashes are
// optional, so "rwu" is accepted as well.
func ParsePerm(s string) (Perm, error) {
	var p Perm

	for _, c := range s {
		switch c {
		case 'r':
			p |= PermR
		case 'w':
			p |= PermW
		case 'x':
			p |= PermX
		case 'u':
			p |= PermU
		case '-':
		default:
			return 0, fmt.Errorf("invalid permission %q", s)
		}
	}

	return p, nil
}

// PrivMode is a RISC-V privilege level.
type PrivMode uint8

// Privilege levels.
const (
	PrivUser       PrivMode = 0
	PrivSupervisor PrivMode = 1
	PrivMachine    PrivMode = 3
)

func (m PrivMode) String() string {
	switch m {
	case PrivUser:
		return "U"
	case PrivSupervisor:
		return "S"
	case PrivMachine:
		return "M"
	default:
		return fmt.Sprintf("PrivMode(%d)", uint8(m))
	}
}

// AccessClass selects which TLB an access goes through.
type AccessClass int

// Access classes.
const (
	ClassInstruction AccessClass = iota
	ClassData
)

func (c AccessClass) String() string {
	if c == ClassInstruction {
		return "itlb"
	}

	return "dtlb"
}

// AccessKind is the type of a memory access.
type AccessKind int

// Access kinds.
const (
	AccessLoad AccessKind = iota
	AccessStore
	AccessFetch
)

// Perm returns the permission bit the access requires.
func (k AccessKind) Perm() Perm {
	switch k {
	case AccessStore:
		return PermW
	case AccessFetch:
		return PermX
	default:
		return PermR
	}
}

// Class returns the TLB the access is looked up in.
func (k AccessKind) Class() AccessClass {
	if k == AccessFetch {
		return ClassInstruction
	}

	return ClassData
}

func (k AccessKind) String() string {
	switch k {
	case AccessLoad:
		return "load"
	case AccessStore:
		return "store"
	case AccessFetch:
		return "fetch"
	default:
		return fmt.Sprintf("AccessKind(%d)", int(k))
	}
}

// CheckAccess reports whether a page with the given permissions may be
// accessed by req.
//
// User mode needs the U bit. Supervisor and machine mode may only load or
// store U pages when SUM is set, and never execute from them. With MXR set,
// loads succeed on execute-only pages.
func CheckAccess(perm Perm, req TranslationReq) bool {
	switch req.Access {
	case AccessLoad:
		if !perm.Has(PermR) && !(req.MXR && perm.Has(PermX)) {
			return false
		}
	case AccessStore:
		if !perm.Has(PermW) {
			return false
		}
	case AccessFetch:
		if !perm.Has(PermX) {
			return false
		}
	default:
		return false
	}

	if req.Mode == PrivUser {
		return perm.Has(PermU)
	}

	if perm.Has(PermU) {
		return req.Access != AccessFetch && req.SUM
	}

	return true
}
