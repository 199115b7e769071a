// Package mmu provides the memory-access path of a hart. It translates virtual
// addresses through the TLB, walks the page table on a miss and raises page
// faults.
package mmu

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/rvtlb/mem/mem"
	"github.com/sarchlab/rvtlb/mem/vm"
	"github.com/sarchlab/rvtlb/mem/vm/tlb"
)

// sstatus bits that affect translation.
const (
	SStatusSUM uint32 = 1 << 18
	SStatusMXR uint32 = 1 << 19
)

// MMU is the translation state of one hart together with the memory it
// accesses.
type MMU struct {
	name    string
	tlb     *tlb.TLB
	storage *mem.Storage
	walker  vm.Walker

	satp vm.SATP
	mode vm.PrivMode
	sum  bool
	mxr  bool

	walks uint64
}

// Name returns the name of the MMU.
func (m *MMU) Name() string {
	return m.name
}

// TLB returns the TLB the MMU caches translations in.
func (m *MMU) TLB() *tlb.TLB {
	return m.tlb
}

// Storage returns the physical memory behind the MMU.
func (m *MMU) Storage() *mem.Storage {
	return m.storage
}

// NumWalks returns the number of page-table walks performed.
func (m *MMU) NumWalks() uint64 {
	return m.walks
}

// SATP returns the current satp value.
func (m *MMU) SATP() vm.SATP {
	return m.satp
}

// SetSATP installs a new satp value. Cached translations are kept since they
// are tagged with their ASID. Software that reuses an ASID must sfence.vma.
func (m *MMU) SetSATP(satp vm.SATP) {
	m.satp = satp
}

// Privilege returns the current privilege mode.
func (m *MMU) Privilege() vm.PrivMode {
	return m.mode
}

// SetPrivilege switches the privilege mode accesses are checked against.
func (m *MMU) SetPrivilege(mode vm.PrivMode) {
	m.mode = mode
}

// SetStatus updates SUM and MXR from an sstatus value.
func (m *MMU) SetStatus(sstatus uint32) {
	m.sum = sstatus&SStatusSUM != 0
	m.mxr = sstatus&SStatusMXR != 0
}

// SFenceVMA executes sfence.vma with the given source registers. A register
// index of zero names x0 and widens the fence to all addresses or all address
// spaces.
func (m *MMU) SFenceVMA(rs1 uint8, rs1Val uint32, rs2 uint8, rs2Val uint32) {
	b := tlb.FlushReqBuilder{}

	if rs1 != 0 {
		b = b.WithVAddr(rs1Val)
	}

	if rs2 != 0 {
		b = b.WithASID(vm.ASID(rs2Val) & vm.MaxASID)
	}

	m.tlb.Flush(b.Build())
}

func (m *MMU) translating() bool {
	return m.satp.Enabled() && m.mode != vm.PrivMachine
}

func (m *MMU) request(access vm.AccessKind, vAddr uint32) vm.TranslationReq {
	return vm.TranslationReq{
		VAddr:  vAddr,
		Access: access,
		Mode:   m.mode,
		ASID:   m.satp.ASID(),
		SUM:    m.sum,
		MXR:    m.mxr,
	}
}

func (m *MMU) fault(req vm.TranslationReq, err error) *PageFault {
	return &PageFault{
		Cause:  causeOf(req.Access),
		VAddr:  req.VAddr,
		Access: req.Access,
		Mode:   req.Mode,
		Err:    err,
	}
}

// Translate returns the physical address of vAddr for the given access. In
// Bare mode and in machine mode addresses are not translated. Failures are
// returned as *PageFault.
func (m *MMU) Translate(access vm.AccessKind, vAddr uint32) (uint64, error) {
	if !m.translating() {
		return uint64(vAddr), nil
	}

	req := m.request(access, vAddr)
	class := access.Class()

	res := m.tlb.Lookup(class, req)
	switch res.Kind {
	case vm.Hit:
		return res.PAddr, nil
	case vm.PermissionDenied:
		return 0, m.fault(req, ErrAccessDenied)
	}

	m.walks++

	tr, err := m.walker.Walk(m.satp, vAddr)
	if err != nil {
		return 0, m.fault(req, err)
	}

	if !vm.CheckAccess(tr.Perm, req) {
		return 0, m.fault(req, ErrAccessDenied)
	}

	m.tlb.Refill(class, req, tr)

	_, offset := vm.SplitAddr(vAddr, tr.Level)

	return tr.PPN | uint64(offset), nil
}

// Read loads n bytes starting at vAddr. An access crossing a page boundary is
// translated page by page.
func (m *MMU) Read(vAddr uint32, n int) ([]byte, error) {
	return m.read(vm.AccessLoad, vAddr, n)
}

// Write stores data starting at vAddr.
func (m *MMU) Write(vAddr uint32, data []byte) error {
	for len(data) > 0 {
		chunk := chunkLen(vAddr, len(data))

		pAddr, err := m.Translate(vm.AccessStore, vAddr)
		if err != nil {
			return err
		}

		err = m.storage.Write(pAddr, data[:chunk])
		if err != nil {
			return fmt.Errorf("storing to 0x%08x: %w", vAddr, err)
		}

		data = data[chunk:]
		vAddr += uint32(chunk)
	}

	return nil
}

// Fetch loads the 32-bit instruction at vAddr.
func (m *MMU) Fetch(vAddr uint32) (uint32, error) {
	buf, err := m.read(vm.AccessFetch, vAddr, 4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(buf), nil
}

// ReadUint32 loads the little-endian word at vAddr.
func (m *MMU) ReadUint32(vAddr uint32) (uint32, error) {
	buf, err := m.Read(vAddr, 4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(buf), nil
}

// WriteUint32 stores value as a little-endian word at vAddr.
func (m *MMU) WriteUint32(vAddr uint32, value uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)

	return m.Write(vAddr, buf)
}

func (m *MMU) read(access vm.AccessKind, vAddr uint32, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %s of %d bytes at 0x%08x",
			ErrNegativeLength, access, n, vAddr)
	}

	out := make([]byte, 0, n)

	for n > 0 {
		chunk := chunkLen(vAddr, n)

		pAddr, err := m.Translate(access, vAddr)
		if err != nil {
			return nil, err
		}

		buf, err := m.storage.Read(pAddr, uint64(chunk))
		if err != nil {
			return nil, fmt.Errorf("%s from 0x%08x: %w", access, vAddr, err)
		}

		out = append(out, buf...)
		n -= chunk
		vAddr += uint32(chunk)
	}

	return out, nil
}

// chunkLen returns how many of the n bytes at vAddr lie in its 4 KiB page.
func chunkLen(vAddr uint32, n int) int {
	left := int(vm.PageSize - vAddr&(vm.PageSize-1))
	if n < left {
		return n
	}

	return left
}
