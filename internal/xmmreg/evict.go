// Completion: 100% - Eviction engine complete
package xmmreg

import (
	"github.com/xyproto/xmmcache/internal/guest"
	"github.com/xyproto/xmmcache/internal/x86"
)

// shufps immediate swapping lanes x and z
const swapXZ = 0xC6

// Free writes slot i back if it is dirty and unbinds it
func (a *Allocator) Free(i int) {
	assertf(i >= 0 && i < a.t.Len(), "slot %d out of range", i)
	a.free(i)
}

func (a *Allocator) free(i int) {
	s := &a.t.slots[i]
	if !s.InUse {
		return
	}
	if s.State.IsDirty() {
		a.writeback(i)
	}
	a.debugf("free xmm%d (%s)", i, s.Key())
	counter := s.Counter
	*s = Slot{Counter: counter}
}

// writeback stores the authoritative lanes of slot i to guest memory. The
// slot state is left to the caller.
func (a *Allocator) writeback(i int) {
	s := &a.t.slots[i]
	x := xmm(i)
	switch s.Class {
	case guest.ClassGPR:
		if s.Index == 0 {
			assertf(false, "r0 is hard-wired to zero and is never written back")
			return
		}
		a.out.MovdqaStore(a.addr(s), x)
	case guest.ClassFPR, guest.ClassFPACC:
		a.out.MovssStore(a.addr(s), x)
	case guest.ClassVF, guest.ClassACC:
		m := a.addr(s)
		switch s.Partial {
		case LowXY:
			a.out.MovlpsStore(m, x)
		case LowXYZ:
			a.storeXYZ(m, x)
		default:
			a.out.MovapsStore(m, x)
		}
	default:
		return
	}
	a.stats.Stores++
	a.debugf("writeback %s from xmm%d (%s)", s.Key(), i, s.Partial)
}

// storeXYZ stores lanes x,y,z of src and leaves w in memory untouched
func (a *Allocator) storeXYZ(m x86.Mem, src x86.XMM) {
	if t := a.t.firstFree(); t != NoSlot {
		a.out.Movhlps(xmm(t), src)
		a.out.MovlpsStore(m, src)
		a.out.MovssStore(m.Offset(8), xmm(t))
		return
	}
	a.out.MovlpsStore(m, src)
	if a.cfg.SSE41 {
		a.out.ExtractpsStore(m.Offset(8), src, 2)
		return
	}
	a.out.Shufps(src, src, swapXZ)
	a.out.MovssStore(m.Offset(8), src)
	a.out.Shufps(src, src, swapXZ)
}

// settle marks a slot clean after its writeback. Lanes outside a partial
// write were never loaded, so such a slot has to be reloaded before a read.
func (s *Slot) settle() {
	if s.Partial != Full {
		s.State = Invalid
	} else {
		s.State = Cached
	}
	s.Partial = Full
}

func (a *Allocator) delete(k Key, policy FlushPolicy) {
	i := a.t.Find(k)
	if i == NoSlot {
		return
	}
	s := &a.t.slots[i]
	switch policy {
	case FlushFree:
		a.free(i)
	case FlushKeep:
		if s.State.IsDirty() {
			a.writeback(i)
			s.settle()
		}
	case FlushDrop:
		a.debugf("drop %s from xmm%d", k, i)
		*s = Slot{Counter: s.Counter}
	}
}

// DeleteGPR removes or flushes the binding of gpr according to policy
func (a *Allocator) DeleteGPR(gpr int, policy FlushPolicy) {
	a.delete(Key{Class: guest.ClassGPR, Index: gpr}, policy)
}

// DeleteFP removes or flushes the binding of FPU register fpr
func (a *Allocator) DeleteFP(fpr int, policy FlushPolicy) {
	a.delete(Key{Class: guest.ClassFPR, Index: fpr}, policy)
}

// DeleteFPAcc removes or flushes the binding of the FPU accumulator
func (a *Allocator) DeleteFPAcc(policy FlushPolicy) {
	a.delete(Key{Class: guest.ClassFPACC}, policy)
}

// DeleteVF removes or flushes the binding of vf in vector unit ctx
func (a *Allocator) DeleteVF(ctx, vf int, policy FlushPolicy) {
	a.delete(Key{Class: guest.ClassVF, Index: vf, Ctx: ctx}, policy)
}

// DeleteVFAcc removes or flushes the binding of the accumulator of ctx
func (a *Allocator) DeleteVFAcc(ctx int, policy FlushPolicy) {
	a.delete(Key{Class: guest.ClassACC, Ctx: ctx}, policy)
}

// Delete is the class-generic form of the Delete family
func (a *Allocator) Delete(c guest.Class, index, ctx int, policy FlushPolicy) {
	a.delete(keyFor(c, index, ctx), policy)
}

// FlushAll writes every dirty register back and keeps all bindings. Used
// before code that may access guest memory directly.
func (a *Allocator) FlushAll() {
	for i := range a.t.slots {
		s := &a.t.slots[i]
		if !s.InUse {
			continue
		}
		assertf(s.Class != guest.ClassTemp, "temp bound in xmm%d at flush", i)
		if s.State.IsDirty() {
			a.writeback(i)
			s.settle()
		}
	}
}

// FreeAll writes every dirty register back and unbinds everything. Must
// run before the translated block exits.
func (a *Allocator) FreeAll() {
	for i := range a.t.slots {
		if !a.t.slots[i].InUse {
			continue
		}
		assertf(a.t.slots[i].Class != guest.ClassTemp, "temp bound in xmm%d at flush", i)
		a.free(i)
	}
}
