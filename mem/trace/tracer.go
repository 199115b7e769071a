// Package trace provides a tracer that records what TLBs do into a database.
package trace

import (
	"github.com/rs/xid"

	"github.com/sarchlab/rvtlb/datarecording"
	"github.com/sarchlab/rvtlb/instrumentation/hooking"
	"github.com/sarchlab/rvtlb/mem/vm"
)

// TableName is the table TLB events are recorded into.
const TableName = "tlb_events"

// An Event is one recorded TLB event, a row of the tlb_events table.
type Event struct {
	ID    string `json:"id"`
	Seq   uint64 `json:"seq"`
	TLB   string `json:"tlb"`
	What  string `json:"what"`
	Class string `json:"class"`
	VAddr uint64 `json:"vaddr"`
	PAddr uint64 `json:"paddr"`
	ASID  uint64 `json:"asid"`
	Level string `json:"level"`
	Perm  string `json:"perm"`
	Count int    `json:"count"`
}

// A dbTracer is a hook that can record the actions of a TLB into a database
// using the data recorder.
type dbTracer struct {
	dataRecorder datarecording.DataRecorder
	positions    map[string]bool
}

// NewDBTracer creates a hook that records TLB events. If positions are given,
// only events raised at those positions are recorded.
func NewDBTracer(
	dataRecorder datarecording.DataRecorder,
	positions ...*hooking.HookPos,
) hooking.Hook {
	t := &dbTracer{
		dataRecorder: dataRecorder,
	}

	if len(positions) > 0 {
		t.positions = make(map[string]bool)
		for _, p := range positions {
			t.positions[p.Name] = true
		}
	}

	t.dataRecorder.CreateTable(TableName, Event{})

	return t
}

// Func records one TLB event.
func (t *dbTracer) Func(ctx hooking.HookCtx) {
	evt, ok := ctx.Item.(vm.TLBEvent)
	if !ok {
		return
	}

	if t.positions != nil && !t.positions[ctx.Pos.Name] {
		return
	}

	entry := Event{
		ID:    xid.New().String(),
		Seq:   evt.Seq,
		TLB:   hooking.DomainName(ctx),
		What:  ctx.Pos.Name,
		Class: evt.Class.String(),
		VAddr: uint64(evt.VAddr),
		PAddr: evt.PAddr,
		ASID:  uint64(evt.ASID),
		Level: evt.Entry.Level.String(),
		Perm:  evt.Entry.Perm.String(),
		Count: evt.Count,
	}

	t.dataRecorder.InsertData(TableName, entry)
}
