// Completion: 100% - Sign extension complete
package xmmreg

import (
	"github.com/xyproto/xmmcache/internal/guest"
	"github.com/xyproto/xmmcache/internal/x86"
)

// SignExtendToMem stores the low dword of slot from, sign extended to 64
// bits, at to. It returns the slot that holds the unmodified value
// afterwards: NoSlot when canDestroy allowed the source to be clobbered,
// a fresh slot when the binding had to move, or from itself.
func (a *Allocator) SignExtendToMem(to x86.Mem, from int, canDestroy bool) int {
	assertf(from >= 0 && from < a.t.Len(), "slot %d out of range", from)
	s := &a.t.slots[from]
	assertf(s.InUse, "sign extension of free slot xmm%d", from)
	s.Kind = Integer
	x := xmm(from)

	if canDestroy {
		assertf(s.Class == guest.ClassTemp || !s.State.IsDirty(),
			"sign extension would destroy unsaved %s in xmm%d", s.Key(), from)
		a.out.MovdStore(to, x)
		a.out.PsradImm(x, 31)
		a.out.MovdStore(to.Offset(4), x)
		if s.Class != guest.ClassTemp {
			s.State = Invalid
			s.Partial = Full
		}
		return NoSlot
	}

	// pinned first so the source itself is not counted as a free candidate
	pinned := s.Needed
	s.Needed = true
	if a.HasFree() {
		t := a.AllocTemp(Integer, NoSlot)
		a.out.MovdqaReg(xmm(t), x)
		a.out.PsradImm(x, 31)
		a.out.MovdStore(to, xmm(t))
		a.out.MovdStore(to.Offset(4), x)
		// the copy in t is the live value now
		a.t.Rebind(from, t)
		a.debugf("sign extension moved %s xmm%d -> xmm%d", a.t.slots[t].Key(), from, t)
		return t
	}
	s.Needed = pinned

	a.out.MovdStore(to.Offset(4), x)
	a.out.MovdStore(to, x)
	a.out.SarMem32Imm(to.Offset(4), 31)
	return from
}
