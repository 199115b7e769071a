package internal

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvtlb/mem/vm"
)

func pageEntry(vAddr uint32, ppn uint64) vm.TLBEntry {
	return vm.MakeTLBEntry(vAddr, 1, vm.Translation{
		PPN:   ppn,
		Level: vm.LevelPage,
		Perm:  vm.PermRW,
	})
}

func vpns(entries []vm.TLBEntry) []uint32 {
	out := make([]uint32, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.VPN)
	}

	return out
}

var _ = Describe("Store", func() {
	var s Store

	BeforeEach(func() {
		s = NewStore(4)
	})

	It("should panic on non-positive capacity", func() {
		Expect(func() { NewStore(0) }).To(Panic())
	})

	It("should start empty", func() {
		Expect(s.Len()).To(Equal(0))
		Expect(s.Cap()).To(Equal(4))

		_, found := s.Lookup(0x1000, 1)
		Expect(found).To(BeFalse())
	})

	It("should find a refilled entry", func() {
		s.Refill(pageEntry(0x1000, 0x8000))

		e, found := s.Lookup(0x1234, 1)

		Expect(found).To(BeTrue())
		Expect(e.PPN).To(Equal(uint64(0x8000)))
	})

	It("should not match another address space", func() {
		s.Refill(pageEntry(0x1000, 0x8000))

		_, found := s.Lookup(0x1000, 2)

		Expect(found).To(BeFalse())
	})

	It("should match global entries in any address space", func() {
		e := pageEntry(0x1000, 0x8000)
		e.Global = true
		s.Refill(e)

		_, found := s.Lookup(0x1000, 7)

		Expect(found).To(BeTrue())
	})

	It("should never exceed capacity and evict in FIFO order", func() {
		for i := uint32(1); i <= 10; i++ {
			_, hasEvicted := s.Refill(pageEntry(i<<12, uint64(i)<<20))

			Expect(s.Len()).To(BeNumerically("<=", 4))
			Expect(hasEvicted).To(Equal(i > 4))
		}

		Expect(vpns(s.Entries())).To(Equal([]uint32{7, 8, 9, 10}))
		for i := uint32(1); i <= 6; i++ {
			_, found := s.Lookup(i<<12, 1)
			Expect(found).To(BeFalse())
		}
	})

	It("should return the evicted entry", func() {
		for i := uint32(1); i <= 4; i++ {
			s.Refill(pageEntry(i<<12, 0))
		}

		evicted, hasEvicted := s.Refill(pageEntry(5<<12, 0))

		Expect(hasEvicted).To(BeTrue())
		Expect(evicted.VPN).To(Equal(uint32(1)))
	})

	It("should replace an entry caching the same mapping", func() {
		s.Refill(pageEntry(0x1000, 0x8000))
		s.Refill(pageEntry(0x2000, 0x9000))
		s.Refill(pageEntry(0x1000, 0xA000))

		Expect(s.Len()).To(Equal(2))
		Expect(vpns(s.Entries())).To(Equal([]uint32{2, 1}))

		e, _ := s.Lookup(0x1000, 1)
		Expect(e.PPN).To(Equal(uint64(0xA000)))
	})

	It("should keep the same VPN in different address spaces apart", func() {
		a := pageEntry(0x1000, 0x8000)
		b := pageEntry(0x1000, 0x9000)
		b.ASID = 2
		s.Refill(a)
		s.Refill(b)

		Expect(s.Len()).To(Equal(2))
	})

	It("should panic when evicting from an empty store", func() {
		Expect(func() { s.Evict() }).To(Panic())
	})

	It("should invalidate matching entries and keep order", func() {
		for i := uint32(1); i <= 4; i++ {
			s.Refill(pageEntry(i<<12, 0))
		}

		removed := s.Invalidate(func(e vm.TLBEntry) bool {
			return e.VPN%2 == 0
		})

		Expect(removed).To(Equal(2))
		Expect(s.Len()).To(Equal(2))
		Expect(vpns(s.Entries())).To(Equal([]uint32{1, 3}))
	})

	It("should reuse invalidated slots without evicting", func() {
		for i := uint32(1); i <= 4; i++ {
			s.Refill(pageEntry(i<<12, 0))
		}
		s.Invalidate(func(e vm.TLBEntry) bool { return e.VPN == 2 })

		_, hasEvicted := s.Refill(pageEntry(9<<12, 0))

		Expect(hasEvicted).To(BeFalse())
		Expect(vpns(s.Entries())).To(Equal([]uint32{1, 3, 4, 9}))
	})

	It("should keep order after the ring wraps", func() {
		for i := uint32(1); i <= 6; i++ {
			s.Refill(pageEntry(i<<12, 0))
		}
		s.Invalidate(func(e vm.TLBEntry) bool { return e.VPN == 4 })
		s.Refill(pageEntry(7<<12, 0))
		s.Refill(pageEntry(8<<12, 0))

		Expect(vpns(s.Entries())).To(Equal([]uint32{5, 6, 7, 8}))
		Expect(s.Evict().VPN).To(Equal(uint32(5)))
	})

	It("should drop everything on reset", func() {
		s.Refill(pageEntry(0x1000, 0))
		s.Reset()

		Expect(s.Len()).To(Equal(0))
		Expect(s.Entries()).To(BeEmpty())
	})
})
