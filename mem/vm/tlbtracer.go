package vm

import (
	"fmt"
	"io"

	"github.com/sarchlab/rvtlb/instrumentation/hooking"
)

// A TLBEvent is the item a TLB passes to its hooks.
type TLBEvent struct {
	// Seq increases by one for every event a TLB raises.
	Seq   uint64
	Class AccessClass
	VAddr uint32
	PAddr uint64
	ASID  ASID
	Entry TLBEntry

	// Count is the number of entries a flush removed.
	Count int
}

// A TLBTracer write logs for what happened in a TLB
type TLBTracer struct {
	writer io.Writer
}

// NewTLBTracer produce a new TLBTracer, injecting the dependency of a writer.
func NewTLBTracer(w io.Writer) *TLBTracer {
	t := new(TLBTracer)
	t.writer = w

	return t
}

// WriteHeader writes the CSV column names.
func (t *TLBTracer) WriteHeader() error {
	_, err := fmt.Fprintln(t.writer, "seq,tlb,what,class,vaddr,paddr,asid,level,count")
	return err
}

// Func prints the tlb trace information.
func (t *TLBTracer) Func(ctx hooking.HookCtx) {
	evt, ok := ctx.Item.(TLBEvent)
	if !ok {
		return
	}

	_, err := fmt.Fprintf(t.writer,
		"%d,%s,%s,%s,0x%08x,0x%x,%d,%s,%d\n",
		evt.Seq,
		hooking.DomainName(ctx),
		ctx.Pos.Name,
		evt.Class,
		evt.VAddr,
		evt.PAddr,
		evt.ASID,
		evt.Entry.Level,
		evt.Count)
	if err != nil {
		panic(err)
	}
}
