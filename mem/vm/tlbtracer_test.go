package vm

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvtlb/instrumentation/hooking"
)

type namedDomain struct {
	*hooking.HookableBase
}

func (namedDomain) Name() string {
	return "Hart[0].TLB"
}

var _ = Describe("TLBTracer", func() {
	var (
		buf    *bytes.Buffer
		tracer *TLBTracer
	)

	BeforeEach(func() {
		buf = new(bytes.Buffer)
		tracer = NewTLBTracer(buf)
	})

	It("should write the header", func() {
		Expect(tracer.WriteHeader()).To(Succeed())
		Expect(buf.String()).
			To(Equal("seq,tlb,what,class,vaddr,paddr,asid,level,count\n"))
	})

	It("should write one line per event", func() {
		tracer.Func(hooking.HookCtx{
			Domain: namedDomain{hooking.NewHookableBase()},
			Pos:    &hooking.HookPos{Name: "hit"},
			Item: TLBEvent{
				Seq:   4,
				Class: ClassData,
				VAddr: 0x1234,
				PAddr: 0x80001234,
				ASID:  2,
				Entry: TLBEntry{Level: LevelMegapage},
			},
		})

		Expect(buf.String()).
			To(Equal("4,Hart[0].TLB,hit,dtlb,0x00001234,0x80001234,2,4M,0\n"))
	})

	It("should ignore other items", func() {
		tracer.Func(hooking.HookCtx{
			Pos:  &hooking.HookPos{Name: "hit"},
			Item: 42,
		})

		Expect(buf.Len()).To(Equal(0))
	})
})
