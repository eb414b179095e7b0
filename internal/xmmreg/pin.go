// Completion: 100% - Needed pinning complete
package xmmreg

import "github.com/xyproto/xmmcache/internal/guest"

func (a *Allocator) addNeeded(k Key) {
	if i := a.t.Find(k); i != NoSlot {
		a.t.Tick(i)
		a.t.slots[i].Needed = true
	}
}

// AddNeededGPR pins gpr if it is bound. The state is not changed.
func (a *Allocator) AddNeededGPR(gpr int) {
	a.addNeeded(Key{Class: guest.ClassGPR, Index: gpr})
}

// AddNeededFP pins FPU register fpr if it is bound
func (a *Allocator) AddNeededFP(fpr int) {
	a.addNeeded(Key{Class: guest.ClassFPR, Index: fpr})
}

// AddNeededFPAcc pins the FPU accumulator if it is bound
func (a *Allocator) AddNeededFPAcc() {
	a.addNeeded(Key{Class: guest.ClassFPACC})
}

// AddNeededVF pins vf of vector unit ctx if it is bound
func (a *Allocator) AddNeededVF(ctx, vf int) {
	a.addNeeded(Key{Class: guest.ClassVF, Index: vf, Ctx: ctx})
}

// AddNeededVFAcc pins the accumulator of ctx if it is bound
func (a *Allocator) AddNeededVFAcc(ctx int) {
	a.addNeeded(Key{Class: guest.ClassACC, Ctx: ctx})
}

// Pin is the class-generic form of the AddNeeded family
func (a *Allocator) Pin(c guest.Class, index, ctx int) {
	a.addNeeded(keyFor(c, index, ctx))
}

// ClearNeeded ends a guest instruction: every slot is unpinned and values
// written by the instruction become readable without a reload. No temp may
// survive the instruction.
func (a *Allocator) ClearNeeded() {
	for i := range a.t.slots {
		s := &a.t.slots[i]
		if s.Needed {
			if s.InUse && s.State == Dirty {
				s.State = DirtyCached
			}
			s.Needed = false
		}
		if s.InUse {
			assertf(s.Class != guest.ClassTemp, "temp in xmm%d crosses an instruction boundary", i)
		}
	}
}

// Pinned returns the number of pinned slots
func (a *Allocator) Pinned() int {
	n := 0
	for _, s := range a.t.slots {
		if s.Needed {
			n++
		}
	}
	return n
}
