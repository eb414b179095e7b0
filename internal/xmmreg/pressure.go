// Completion: 100% - Register pressure reporting complete
package xmmreg

import (
	"fmt"
	"io"
)

// Stats counts what the allocator did in the current translation unit
type Stats struct {
	InUse     int
	Peak      int
	Total     int
	Pinned    int
	Dirty     int
	Loads     int
	Stores    int
	Evictions int
	Transfers int // values taken over from the alternate register file
	Faults    int // faults of either kind raised under Allocator.Run
	Pressure  float64 // 0.0 to 1.0
}

// IsSpillHeavy reports whether more than 80% of the slots are bound
func (st Stats) IsSpillHeavy() bool {
	return st.Pressure > 0.8
}

// Pressure returns current usage statistics
func (a *Allocator) Pressure() Stats {
	st := a.stats
	st.InUse = a.t.InUse()
	st.Pinned = a.Pinned()
	st.Dirty = a.NumDirty()
	st.Total = a.t.Len()
	st.Pressure = float64(st.InUse) / float64(st.Total)
	return st
}

// ReportPressure prints a summary of register usage
func (a *Allocator) ReportPressure(w io.Writer, label string) {
	st := a.Pressure()
	fmt.Fprintf(w, "=== XMM pressure: %s ===\n", label)
	fmt.Fprintf(w, "slots: %d/%d used (%.1f%%), peak: %d, dirty: %d, pinned: %d\n",
		st.InUse, st.Total, st.Pressure*100, st.Peak, st.Dirty, st.Pinned)
	fmt.Fprintf(w, "loads: %d, stores: %d, evictions: %d, transfers: %d, faults: %d\n",
		st.Loads, st.Stores, st.Evictions, st.Transfers, st.Faults)
	if st.IsSpillHeavy() {
		fmt.Fprintln(w, "high pressure: most slots are bound")
	}
}

// Dump prints the slot table, one line per slot
func (a *Allocator) Dump(w io.Writer) {
	fmt.Fprintf(w, "=== XMM slots (counter %d, cursor %d) ===\n", a.t.counter, a.t.cursor)
	for i := range a.t.slots {
		s := &a.t.slots[i]
		if !s.InUse {
			fmt.Fprintf(w, "  xmm%-2d free\n", i)
			continue
		}
		fmt.Fprintf(w, "  xmm%-2d %s (ctr %d)\n", i, s, s.Counter)
	}
}
