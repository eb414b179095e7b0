// Completion: 100% - Bind operations complete
package xmmreg

import (
	"github.com/xyproto/xmmcache/internal/guest"
	"github.com/xyproto/xmmcache/internal/liveness"
)

// AllocGPR binds guest GPR gpr (0-31, HI, LO) to a slot. explicit forces a
// specific slot, NoSlot lets the policy choose. The slot is pinned.
func (a *Allocator) AllocGPR(explicit, gpr int, mode Mode) int {
	return a.bind(Key{Class: guest.ClassGPR, Index: gpr}, explicit, mode)
}

// AllocFP binds FPU register fpr
func (a *Allocator) AllocFP(explicit, fpr int, mode Mode) int {
	return a.bind(Key{Class: guest.ClassFPR, Index: fpr}, explicit, mode)
}

// AllocFPAcc binds the FPU accumulator
func (a *Allocator) AllocFPAcc(explicit int, mode Mode) int {
	return a.bind(Key{Class: guest.ClassFPACC}, explicit, mode)
}

// AllocVF binds vector register vf of vector unit ctx
func (a *Allocator) AllocVF(ctx, explicit, vf int, mode Mode) int {
	return a.bind(Key{Class: guest.ClassVF, Index: vf, Ctx: ctx}, explicit, mode)
}

// AllocVFAcc binds the accumulator of vector unit ctx
func (a *Allocator) AllocVFAcc(ctx, explicit int, mode Mode) int {
	return a.bind(Key{Class: guest.ClassACC, Ctx: ctx}, explicit, mode)
}

// Alloc binds any guest register by class
func (a *Allocator) Alloc(c guest.Class, index, ctx, explicit int, mode Mode) int {
	assertf(c != guest.ClassTemp, "use AllocTemp for temporaries")
	return a.bind(keyFor(c, index, ctx), explicit, mode)
}

// AllocTemp reserves a slot for a scratch value. The slot is pinned and its
// contents are undefined. Temps must be freed before ClearNeeded.
func (a *Allocator) AllocTemp(kind DataKind, explicit int) int {
	i := a.claim(explicit)
	s := &a.t.slots[i]
	*s = Slot{InUse: true, Class: guest.ClassTemp, Needed: true, Kind: kind}
	a.t.Tick(i)
	a.notePeak()
	a.debugf("temp %s -> xmm%d", kind, i)
	return i
}

// AllocCheckGPR binds gpr when the liveness entry wants it in an XMM
// register and otherwise only looks it up
func (a *Allocator) AllocCheckGPR(in *liveness.Inst, gpr int, mode Mode) int {
	if in.GPR(gpr)&liveness.XMM != 0 {
		return a.AllocGPR(NoSlot, gpr, mode)
	}
	i, _ := a.Check(guest.ClassGPR, gpr, 0, mode)
	return i
}

// AllocCheckFP is AllocCheckGPR for FPU registers
func (a *Allocator) AllocCheckFP(in *liveness.Inst, fpr int, mode Mode) int {
	if in.FPR(fpr)&liveness.XMM != 0 {
		return a.AllocFP(NoSlot, fpr, mode)
	}
	i, _ := a.Check(guest.ClassFPR, fpr, 0, mode)
	return i
}

// claim returns explicit after evicting its occupant, or a slot from the
// policy when explicit is NoSlot
func (a *Allocator) claim(explicit int) int {
	if explicit == NoSlot {
		return a.acquire()
	}
	assertf(explicit >= 0 && explicit < a.t.Len(), "slot %d out of range", explicit)
	assertf(!a.t.slots[explicit].Needed, "forced slot xmm%d is pinned by %s", explicit, a.t.slots[explicit].Key())
	a.free(explicit)
	return explicit
}

func (a *Allocator) bind(k Key, explicit int, mode Mode) int {
	assertf(mode&ReadHalf == 0, "half reads are only supported by Check")
	if k.Class == guest.ClassGPR {
		assertf(k.Index != 0 || mode&Write == 0, "r0 is hard-wired to zero and cannot be bound for write")
		if mode&Write != 0 {
			a.consts.Invalidate(k.Index)
		}
	}
	a.touch(k, mode)

	if i := a.t.Find(k); i != NoSlot {
		if explicit != NoSlot && explicit != i {
			i = a.migrate(i, explicit)
		}
		if k.Class == guest.ClassGPR && a.alt != nil {
			_, _, cached := a.alt.Lookup(k.Index)
			assertf(!cached, "%s is cached in both register files", k)
		}
		a.update(i, mode)
		return i
	}

	i := a.claim(explicit)
	s := &a.t.slots[i]
	*s = Slot{InUse: true, Class: k.Class, Index: k.Index, Ctx: k.Ctx, Needed: true, Kind: kindOf(k.Class)}
	a.t.Tick(i)
	a.notePeak()
	a.debugf("bind %s -> xmm%d (%s)", k, i, mode)

	if mode&Read != 0 {
		a.loadFresh(i, mode)
	} else if k.Class == guest.ClassGPR && a.alt != nil {
		a.alt.Evict(k.Index, FlushFree)
	}
	if mode&Write != 0 {
		s.markWrite(writeShape(s.Class, mode))
	}
	return i
}

// update applies a new request to a slot that is already bound
func (a *Allocator) update(i int, mode Mode) {
	s := &a.t.slots[i]
	if mode&Read != 0 {
		a.ensureRead(i)
	}
	if mode&Write != 0 {
		s.markWrite(writeShape(s.Class, mode))
	}
	s.Needed = true
	a.t.Tick(i)
}

// migrate moves the binding in slot from to slot to. The value travels by
// register copy so a pending write is kept.
func (a *Allocator) migrate(from, to int) int {
	assertf(to >= 0 && to < a.t.Len(), "slot %d out of range", to)
	assertf(!a.t.slots[to].Needed, "forced slot xmm%d is pinned by %s", to, a.t.slots[to].Key())
	a.free(to)
	s := a.t.slots[from]
	if s.State != Invalid {
		if s.Kind == Integer {
			a.out.MovdqaReg(xmm(to), xmm(from))
		} else {
			a.out.MovapsReg(xmm(to), xmm(from))
		}
	}
	a.t.Rebind(from, to)
	a.debugf("move %s xmm%d -> xmm%d", s.Key(), from, to)
	return to
}

// loadFresh fills a newly bound slot from guest memory or from the
// alternate register file
func (a *Allocator) loadFresh(i int, mode Mode) {
	s := &a.t.slots[i]
	if s.Class == guest.ClassGPR && s.Index != 0 && a.alt != nil {
		a.consts.Flush(a.out, a.layout, s.Index)
		if mm, dirty, ok := a.alt.Lookup(s.Index); ok {
			m := a.addr(s)
			a.out.Movq2dq(xmm(i), mm)
			a.out.Punpcklqdq(xmm(i), xmm(i))
			a.out.PunpckhqdqLoad(xmm(i), m)
			if dirty && mode&Write == 0 {
				a.out.MovqStoreMMX(m, mm)
			}
			a.alt.Evict(s.Index, FlushDrop)
			a.stats.Transfers++
			a.debugf("transfer %s from %s", s.Key(), mm)
			s.markRead()
			return
		}
	}
	a.load(i)
}

// load fills the whole register from guest memory
func (a *Allocator) load(i int) {
	s := &a.t.slots[i]
	x := xmm(i)
	switch s.Class {
	case guest.ClassVF, guest.ClassACC:
		a.out.MovapsLoad(x, a.addr(s))
	case guest.ClassFPR, guest.ClassFPACC:
		a.out.MovssLoad(x, a.addr(s))
	case guest.ClassGPR:
		if s.Index == 0 {
			a.out.Pxor(x, x)
			break
		}
		a.consts.Flush(a.out, a.layout, s.Index)
		a.out.MovdqaLoad(x, a.addr(s))
	default:
		assertf(false, "cannot load %s", s.Key())
		return
	}
	a.stats.Loads++
	s.markRead()
}

// loadHalf fills the low 64 bits only
func (a *Allocator) loadHalf(i int) {
	s := &a.t.slots[i]
	if s.Class == guest.ClassGPR {
		if s.Index == 0 {
			a.out.Pxor(xmm(i), xmm(i))
			return
		}
		a.consts.Flush(a.out, a.layout, s.Index)
	}
	if s.Kind == Integer {
		a.out.MovqLoad(xmm(i), a.addr(s))
	} else {
		a.out.MovlpsLoad(xmm(i), a.addr(s))
	}
	a.stats.Loads++
}

// ensureRead makes every lane of a bound register readable
func (a *Allocator) ensureRead(i int) {
	s := &a.t.slots[i]
	switch {
	case s.State == Cached:
	case s.State.IsDirty() && s.Partial != Full:
		// merge the written lanes with memory
		a.writeback(i)
		s.State = Invalid
		s.Partial = Full
		a.load(i)
	case s.State == DirtyCached:
	default:
		a.load(i)
	}
}

// Check looks up a bound register without binding it. On a hit the slot is
// loaded as mode asks, stamped and pinned. ReadHalf loads only the low 64
// bits and does not make the register valid.
func (a *Allocator) Check(c guest.Class, index, ctx int, mode Mode) (int, bool) {
	k := keyFor(c, index, ctx)
	i := a.t.Find(k)
	if i == NoSlot {
		return NoSlot, false
	}
	s := &a.t.slots[i]
	switch {
	case mode&Read != 0:
		a.ensureRead(i)
	case mode&ReadHalf != 0:
		if !s.State.IsValid() && !(s.State == Dirty && s.Partial != Full) {
			a.loadHalf(i)
		}
	}
	if mode&Write != 0 {
		assertf(!(c == guest.ClassGPR && index == 0), "r0 is hard-wired to zero and cannot be written")
		if c == guest.ClassGPR {
			a.consts.Invalidate(index)
		}
		s.markWrite(writeShape(s.Class, mode))
	}
	a.touch(k, mode)
	s.Needed = true
	a.t.Tick(i)
	return i, true
}

func (a *Allocator) notePeak() {
	if n := a.t.InUse(); n > a.stats.Peak {
		a.stats.Peak = n
	}
}
