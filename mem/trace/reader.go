package trace

import (
	"context"
	"sort"

	"github.com/sarchlab/rvtlb/datarecording"
)

const readPageSize = 10000

// ReadEvents returns the recorded events that params select, along with the
// number of events matching params.Where.
func ReadEvents(
	ctx context.Context,
	reader datarecording.DataReader,
	params datarecording.QueryParams,
) ([]*Event, int, error) {
	reader.MapTable(TableName, Event{})

	results, total, err := reader.Query(ctx, TableName, params)
	if err != nil {
		return nil, 0, err
	}

	events := make([]*Event, 0, len(results))
	for _, r := range results {
		events = append(events, r.(*Event))
	}

	return events, total, nil
}

// A Count is the number of events one TLB store raised at one hook position.
type Count struct {
	TLB    string `json:"tlb"`
	Class  string `json:"class"`
	What   string `json:"what"`
	Events int    `json:"events"`
}

// Summarize counts the recorded events by TLB, class and hook position. The
// result is sorted in that order.
func Summarize(
	ctx context.Context,
	reader datarecording.DataReader,
) ([]Count, error) {
	type key struct{ tlb, class, what string }

	counts := make(map[key]int)

	for offset := 0; ; offset += readPageSize {
		events, total, err := ReadEvents(ctx, reader, datarecording.QueryParams{
			OrderBy: "ID",
			Limit:   readPageSize,
			Offset:  offset,
		})
		if err != nil {
			return nil, err
		}

		for _, e := range events {
			counts[key{e.TLB, e.Class, e.What}]++
		}

		if len(events) == 0 || offset+len(events) >= total {
			break
		}
	}

	summary := make([]Count, 0, len(counts))
	for k, n := range counts {
		summary = append(summary, Count{
			TLB: k.tlb, Class: k.class, What: k.what, Events: n,
		})
	}

	sort.Slice(summary, func(i, j int) bool {
		a, b := summary[i], summary[j]
		if a.TLB != b.TLB {
			return a.TLB < b.TLB
		}

		if a.Class != b.Class {
			return a.Class < b.Class
		}

		return a.What < b.What
	})

	return summary, nil
}
