package tlb

// ClassStats counts what happened in one store.
type ClassStats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Denials       uint64 `json:"denials"`
	Refills       uint64 `json:"refills"`
	Evictions     uint64 `json:"evictions"`
	Invalidations uint64 `json:"invalidations"`
}

// Lookups returns the number of lookups served.
func (s ClassStats) Lookups() uint64 {
	return s.Hits + s.Misses + s.Denials
}

// HitRate returns the fraction of lookups that hit, or 0 with no lookups.
func (s ClassStats) HitRate() float64 {
	n := s.Lookups()
	if n == 0 {
		return 0
	}

	return float64(s.Hits) / float64(n)
}

// Stats counts what happened in a TLB.
type Stats struct {
	Instruction ClassStats `json:"itlb"`
	Data        ClassStats `json:"dtlb"`
	Flushes     uint64     `json:"flushes"`
}
