package vm

import (
	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvtlb/mem/mem"
)

var _ = Describe("PageTable", func() {
	var (
		storage *mem.Storage
		alloc   *FrameAllocator
		pt      *PageTable
	)

	BeforeEach(func() {
		var err error

		storage = mem.NewStorage(64 * mem.KB)
		alloc = NewFrameAllocator(storage, 0, 64*mem.KB)
		pt, err = NewPageTable(storage, alloc)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should walk a 4K mapping", func() {
		err := pt.Map(0x00401000, 0x80002000, LevelPage, PermRW|PermU, false)
		Expect(err).NotTo(HaveOccurred())

		tr, err := pt.Walk(0x00401234)

		Expect(err).NotTo(HaveOccurred())
		want := Translation{
			PPN:   0x80002000,
			Level: LevelPage,
			Perm:  PermRW | PermU,
		}
		Expect(cmp.Diff(want, tr)).To(BeEmpty())
	})

	It("should walk a megapage mapping", func() {
		err := pt.Map(0x00400000, 0x80400000, LevelMegapage, PermRX, true)
		Expect(err).NotTo(HaveOccurred())

		tr, err := pt.Walk(0x007FFFFC)

		Expect(err).NotTo(HaveOccurred())
		want := Translation{
			PPN:    0x80400000,
			Level:  LevelMegapage,
			Perm:   PermRX,
			Global: true,
		}
		Expect(cmp.Diff(want, tr)).To(BeEmpty())
	})

	It("should walk through the satp root", func() {
		Expect(pt.Map(0x1000, 0x3000, LevelPage, PermR, false)).To(Succeed())

		walker := NewWalker(storage)
		tr, err := walker.Walk(pt.SATP(5), 0x1004)

		Expect(err).NotTo(HaveOccurred())
		Expect(tr.PPN).To(Equal(uint64(0x3000)))

		_, err = walker.Walk(SATP(0), 0x1004)
		Expect(err).To(MatchError(ErrTranslationDisabled))
	})

	It("should report unmapped pages", func() {
		_, err := pt.Walk(0x5000)
		Expect(err).To(MatchError(ErrPageNotMapped))

		Expect(pt.Map(0x1000, 0x3000, LevelPage, PermR, false)).To(Succeed())
		_, err = pt.Walk(0x2000)
		Expect(err).To(MatchError(ErrPageNotMapped))
	})

	It("should share the second-level table", func() {
		before := alloc.Remaining()

		Expect(pt.Map(0x1000, 0x3000, LevelPage, PermR, false)).To(Succeed())
		Expect(pt.Map(0x2000, 0x4000, LevelPage, PermR, false)).To(Succeed())

		Expect(alloc.Remaining()).To(Equal(before - 1))
	})

	It("should map the top of the 34-bit physical space", func() {
		top := MaxPAddr + 1 - PageSize
		Expect(pt.Map(0x1000, top, LevelPage, PermR, false)).To(Succeed())

		tr, err := pt.Walk(0x1abc)
		Expect(err).NotTo(HaveOccurred())
		Expect(tr.PPN).To(Equal(top))
	})

	It("should refuse bad mappings", func() {
		Expect(pt.Map(0x1001, 0x3000, LevelPage, PermR, false)).
			To(MatchError(ErrMisaligned))
		Expect(pt.Map(0x00400000, 0x1000, LevelMegapage, PermR, false)).
			To(MatchError(ErrMisaligned))
		Expect(pt.Map(0x1000, 0x3000, LevelPage, PermW, false)).
			To(MatchError(ErrInvalidPerm))
		Expect(pt.Map(0x1000, 0x3000, LevelPage, PermU, false)).
			To(MatchError(ErrInvalidPerm))
		Expect(pt.Map(0x1000, MaxPAddr+1, LevelPage, PermR, false)).
			To(MatchError(ErrPAddrTooLarge))

		Expect(pt.Map(0x1000, 0x3000, LevelPage, PermR, false)).To(Succeed())
		Expect(pt.Map(0x1000, 0x5000, LevelPage, PermR, false)).
			To(MatchError(ErrAlreadyMapped))
		Expect(pt.Map(0x0, 0x0, LevelMegapage, PermR, false)).
			To(MatchError(ErrAlreadyMapped))
	})

	It("should refuse a page inside a megapage", func() {
		Expect(pt.Map(0x00400000, 0x00400000, LevelMegapage, PermR, false)).
			To(Succeed())

		Expect(pt.Map(0x00401000, 0x3000, LevelPage, PermR, false)).
			To(MatchError(ErrAlreadyMapped))
	})

	It("should unmap", func() {
		Expect(pt.Map(0x1000, 0x3000, LevelPage, PermR, false)).To(Succeed())

		Expect(pt.Unmap(0x1000)).To(Succeed())

		_, err := pt.Walk(0x1000)
		Expect(err).To(MatchError(ErrPageNotMapped))
		Expect(pt.Unmap(0x1000)).To(MatchError(ErrPageNotMapped))
	})

	It("should run out of frames", func() {
		small := mem.NewStorage(2 * PageSize)
		a := NewFrameAllocator(small, 0, 2*PageSize)
		table, err := NewPageTable(small, a)
		Expect(err).NotTo(HaveOccurred())

		Expect(table.Map(0x1000, 0x3000, LevelPage, PermR, false)).
			To(Succeed())
		Expect(table.Map(0x00400000, 0x3000, LevelPage, PermR, false)).
			To(MatchError(ErrOutOfFrames))
	})

	Context("with hand-written page tables", func() {
		It("should reject writable pages that are not readable", func() {
			Expect(storage.WriteUint32(pt.Root(), pteV|uint32(PermW))).
				To(Succeed())

			_, err := pt.Walk(0x1000)
			Expect(err).To(MatchError(ErrInvalidPTE))
		})

		It("should reject misaligned megapages", func() {
			pte := uint32(1)<<ptePPNShift | pteV | uint32(PermR)
			Expect(storage.WriteUint32(pt.Root(), pte)).To(Succeed())

			_, err := pt.Walk(0x1000)
			Expect(err).To(MatchError(ErrMisalignedSuperpage))
		})

		It("should reject pointers at the last level", func() {
			Expect(pt.Map(0x1000, 0x3000, LevelPage, PermR, false)).
				To(Succeed())
			Expect(pt.Unmap(0x1000)).To(Succeed())

			rootPTE, err := storage.ReadUint32(pt.Root())
			Expect(err).NotTo(HaveOccurred())
			table := uint64(rootPTE>>ptePPNShift) << PageShift
			Expect(storage.WriteUint32(table+PTESize, pteV)).To(Succeed())

			_, err = pt.Walk(0x1000)
			Expect(err).To(MatchError(ErrPageNotMapped))
		})

		It("should report tables outside memory", func() {
			pte := uint32(0xFFFFF)<<ptePPNShift | pteV
			Expect(storage.WriteUint32(pt.Root(), pte)).To(Succeed())

			_, err := pt.Walk(0x1000)
			Expect(err).To(MatchError(ErrPageTableOutOfRange))
		})
	})
})
