package workload

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type countingProgress struct {
	finished uint64
}

func (p *countingProgress) IncrementFinished(amount uint64) {
	p.finished += amount
}

// spyLocker records how many address spaces existed each time it was taken.
type spyLocker struct {
	sync.Mutex

	mc     *Machine
	held   bool
	spaces []int
}

func (l *spyLocker) Lock() {
	l.Mutex.Lock()
	l.held = true
	l.spaces = append(l.spaces, l.mc.NumSpaces())
}

func (l *spyLocker) Unlock() {
	l.held = false
	l.Mutex.Unlock()
}

var _ = Describe("Synthetic", func() {
	var w Synthetic

	BeforeEach(func() {
		w = Synthetic{
			Seed:          7,
			NumSpaces:     4,
			PagesPerSpace: 16,
			Accesses:      2000,
			SwitchEvery:   100,
			FenceEvery:    250,
		}
	})

	It("should hold the machine lock from setup to report", func() {
		mc := newMachine(8)
		l := &spyLocker{mc: mc}
		mc.WithLocker(l)

		report, err := w.Run(context.Background(), mc)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Accesses).To(Equal(uint64(2000)))

		Expect(l.held).To(BeFalse())
		Expect(l.spaces).To(HaveLen(w.Accesses + 2))
		Expect(l.spaces[0]).To(BeZero(), "setup maps spaces under the lock")
		Expect(l.spaces[1]).To(Equal(4))
	})

	It("should be reproducible", func() {
		first, err := w.Run(context.Background(), newMachine(8))
		Expect(err).NotTo(HaveOccurred())

		second, err := w.Run(context.Background(), newMachine(8))
		Expect(err).NotTo(HaveOccurred())

		Expect(first).To(Equal(second))
	})

	It("should account for every access", func() {
		progress := &countingProgress{}
		w.Progress = progress
		mc := newMachine(8)

		report, err := w.Run(context.Background(), mc)

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Accesses).To(Equal(uint64(2000)))
		Expect(progress.finished).To(Equal(uint64(2000)))
		Expect(report.Switches).To(Equal(uint64(20)))
		Expect(report.Fences).To(Equal(uint64(8)))
		Expect(report.Faults).To(BeNumerically(">", 0))
		Expect(report.TLB.Data.Hits).To(BeNumerically(">", 0))
		Expect(report.Walks).To(Equal(
			report.TLB.Data.Misses + report.TLB.Instruction.Misses))
		Expect(mc.NumSpaces()).To(Equal(4))
	})

	It("should hit more with a larger TLB", func() {
		small, err := w.Run(context.Background(), newMachine(2))
		Expect(err).NotTo(HaveOccurred())

		large, err := w.Run(context.Background(), newMachine(64))
		Expect(err).NotTo(HaveOccurred())

		Expect(large.TLB.Data.HitRate()).
			To(BeNumerically(">", small.TLB.Data.HitRate()))
	})

	It("should reject impossible workloads", func() {
		w.NumSpaces = 0
		_, err := w.Run(context.Background(), newMachine(8))
		Expect(err).To(MatchError(ErrInvalidWorkload))

		w.NumSpaces = 2
		w.PagesPerSpace = 0
		_, err = w.Run(context.Background(), newMachine(8))
		Expect(err).To(MatchError(ErrInvalidWorkload))
	})
})
