// Completion: 100% - Allocation policy complete
package xmmreg

import (
	"fmt"

	"github.com/xyproto/xmmcache/internal/guest"
	"github.com/xyproto/xmmcache/internal/liveness"
)

// Strategy is one tier of the free slot search. Pick returns a candidate
// slot or NoSlot and must not change the table.
type Strategy struct {
	Name string
	Pick func(a *Allocator) int
}

// FreeScan picks an unbound slot, starting at the rotating cursor
var FreeScan = Strategy{Name: "free", Pick: func(a *Allocator) int {
	n := a.t.Len()
	for i := 0; i < n; i++ {
		j := (a.t.cursor + i) % n
		if !a.t.slots[j].InUse {
			return j
		}
	}
	return NoSlot
}}

// DeadScan picks an unpinned GPR whose value is no longer live in an XMM
// register
var DeadScan = Strategy{Name: "dead", Pick: func(a *Allocator) int {
	if a.inst == nil {
		return NoSlot
	}
	for i, s := range a.t.slots {
		if s.InUse && !s.Needed && s.Class == guest.ClassGPR && !a.inst.IsLiveXMM(s.Index) {
			return i
		}
	}
	return NoSlot
}}

// SoonDeadScan picks an unpinned GPR that the coming code does not want in
// an XMM register
var SoonDeadScan = Strategy{Name: "soon-dead", Pick: func(a *Allocator) int {
	if a.inst == nil {
		return NoSlot
	}
	for i, s := range a.t.slots {
		if s.InUse && !s.Needed && s.Class == guest.ClassGPR && a.inst.GPR(s.Index)&liveness.XMM == 0 {
			return i
		}
	}
	return NoSlot
}}

// LRUScan picks the unpinned guest register with the oldest counter, first
// in scan order on ties. Unpinned temps are only taken when no guest
// register qualifies.
var LRUScan = Strategy{Name: "lru", Pick: func(a *Allocator) int {
	best, temp := NoSlot, NoSlot
	for i, s := range a.t.slots {
		if !s.InUse || s.Needed {
			continue
		}
		if s.Class == guest.ClassTemp {
			if temp == NoSlot {
				temp = i
			}
			continue
		}
		if best == NoSlot || s.Counter < a.t.slots[best].Counter {
			best = i
		}
	}
	if best != NoSlot {
		return best
	}
	return temp
}}

// DefaultStrategies returns the acquire order: free, dead, soon-dead, LRU
func DefaultStrategies() []Strategy {
	return []Strategy{FreeScan, DeadScan, SoonDeadScan, LRUScan}
}

// acquire returns a free slot, evicting a bound one if needed. It raises
// ErrExhausted when every slot is pinned.
func (a *Allocator) acquire() int {
	for _, st := range a.strategies {
		i := st.Pick(a)
		if i == NoSlot {
			continue
		}
		s := &a.t.slots[i]
		assertf(!s.Needed, "strategy %s picked pinned slot %d", st.Name, i)
		if !s.InUse {
			a.t.cursor = (i + 1) % a.t.Len()
		} else {
			a.debugf("evict %s from xmm%d (%s)", s.Key(), i, st.Name)
			a.stats.Evictions++
			a.free(i)
		}
		return i
	}
	panic(&Fault{Kind: ErrExhausted, Msg: fmt.Sprintf("all %d slots are pinned", a.t.Len())})
}

// HasFree reports whether a slot can be had without evicting a value that
// is still wanted: a free slot, a dead GPR, or a GPR not used again.
func (a *Allocator) HasFree() bool {
	for _, s := range a.t.slots {
		if !s.InUse {
			return true
		}
	}
	if a.inst == nil {
		return false
	}
	for _, s := range a.t.slots {
		if !s.Needed && s.Class == guest.ClassGPR && !a.inst.IsLiveXMM(s.Index) {
			return true
		}
	}
	for _, s := range a.t.slots {
		if !s.Needed && s.Class == guest.ClassGPR && a.inst.GPR(s.Index)&liveness.Used == 0 {
			return true
		}
	}
	return false
}
