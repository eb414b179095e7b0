package xmmreg

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xyproto/xmmcache/internal/guest"
	"github.com/xyproto/xmmcache/internal/liveness"
	"github.com/xyproto/xmmcache/internal/sim"
	"github.com/xyproto/xmmcache/internal/x86"
)

func TestNewValidatesSlots(t *testing.T) {
	out := x86.NewOut()
	for _, n := range []int{-1, 17} {
		_, err := New(Config{Slots: n}, out, nil, nil, nil)
		assert.Error(t, err, "slots %d", n)
	}
	_, err := New(Config{}, nil, nil, nil, nil)
	assert.Error(t, err)

	a, err := New(Config{}, out, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, x86.NumXMM, a.Table().Len())
	assert.NotNil(t, a.Layout())
	assert.NotNil(t, a.Consts())
}

// Eight free slots: a write-only bind, a read check and a free produce
// exactly one load and one store.
func TestEightSlotScenario(t *testing.T) {
	f := newFixture(t, Config{Slots: 8}, nil)
	a := f.a

	s := a.AllocGPR(NoSlot, 3, Write)
	require.NotEqual(t, NoSlot, s)
	assert.Equal(t, Dirty, a.Slot(s).State)
	assert.Empty(t, f.out.Listing(), "write-only bind loads nothing")

	i, ok := a.Check(guest.ClassGPR, 3, 0, Read)
	require.True(t, ok)
	assert.Equal(t, s, i)
	assert.Equal(t, 1, countLoads(f.out.Listing()))
	assert.Equal(t, DirtyCached, a.Slot(s).State)

	a.Free(s)
	assert.Equal(t, 1, countLoads(f.out.Listing()))
	assert.Equal(t, 1, countStores(f.out.Listing()))
	assert.False(t, a.Slot(s).InUse)
}

func TestGPRRoundTrip(t *testing.T) {
	f := newFixture(t, Config{Slots: 8}, nil)
	s := f.a.AllocGPR(NoSlot, 5, Write)
	f.sync()
	f.m.XMM[s] = sim.Vec{0xDEADBEEF, 1, 2, 0xCAFEBABE}
	f.a.ClearNeeded()
	f.a.FreeAll()
	f.sync()
	assert.Equal(t, sim.Vec{0xDEADBEEF, 1, 2, 0xCAFEBABE}, f.m.Vec(f.off(guest.ClassGPR, 5, 0)))
	assert.Zero(t, f.a.Table().InUse())
}

func TestPartialXYPreservesUpperLanes(t *testing.T) {
	f := newFixture(t, Config{Slots: 8}, nil)
	off := f.off(guest.ClassVF, 4, 1)
	f.m.SetVec(off, sim.Vec{1, 2, 3, 4})

	s := f.a.AllocVF(1, NoSlot, 4, Write|PartialXY)
	f.sync()
	f.m.XMM[s] = sim.Vec{10, 20, 0xBAD, 0xBAD}
	f.a.ClearNeeded()
	f.a.FreeAll()
	f.sync()

	assert.Equal(t, sim.Vec{10, 20, 3, 4}, f.m.Vec(off))
	assert.Equal(t, 1, f.out.Count(x86.OpMovlps))
	assert.Zero(t, f.out.Count(x86.OpMovaps))
}

func TestPartialXYZ(t *testing.T) {
	tests := []struct {
		name  string
		slots int
		sse41 bool
		want  []x86.Op
	}{
		{"scratch register", 4, false, []x86.Op{x86.OpMovhlps, x86.OpMovlps, x86.OpMovss}},
		{"in place", 1, false, []x86.Op{x86.OpMovlps, x86.OpShufps, x86.OpMovss, x86.OpShufps}},
		{"in place sse4.1", 1, true, []x86.Op{x86.OpMovlps, x86.OpExtractps}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{Slots: tt.slots, SSE41: tt.sse41}, nil)
			off := f.off(guest.ClassACC, 0, 0)
			f.m.SetVec(off, sim.Vec{1, 2, 3, 4})

			s := f.a.AllocVFAcc(0, NoSlot, Write|PartialXYZ)
			f.sync()
			f.m.XMM[s] = sim.Vec{10, 20, 30, 0xBAD}
			mark := f.mark()
			f.a.Free(s)
			f.sync()

			assert.Equal(t, tt.want, f.ops(mark))
			assert.Equal(t, sim.Vec{10, 20, 30, 4}, f.m.Vec(off))
			assert.Equal(t, sim.Vec{10, 20, 30, 0xBAD}, f.m.XMM[s], "register is restored after the shuffle")
		})
	}
}

func TestZeroRegister(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	f.m.SetVec(f.off(guest.ClassGPR, 0, 0), sim.Vec{0x55, 0x55, 0x55, 0x55})

	s := f.a.AllocGPR(NoSlot, 0, Read)
	f.sync()
	assert.Equal(t, []x86.Op{x86.OpPxor}, f.ops(0))
	assert.Equal(t, sim.Vec{}, f.m.XMM[s])

	f.a.ClearNeeded()
	f.a.FreeAll()
	assert.Zero(t, countStores(f.out.Listing()))
}

func TestZeroRegisterWriteIsFault(t *testing.T) {
	needAssertions(t)
	f := newFixture(t, Config{Slots: 4}, nil)
	err := Run(func() {
		f.a.AllocGPR(NoSlot, 0, Write)
		f.a.FreeAll()
	})
	assert.ErrorIs(t, err, ErrInvariant)
	assert.Zero(t, countStores(f.out.Listing()))
}

func TestIdempotentReadBind(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	s1 := f.a.AllocVF(0, NoSlot, 7, Read)
	s2 := f.a.AllocVF(0, NoSlot, 7, Read)
	assert.Equal(t, s1, s2)
	assert.Equal(t, 1, f.out.Count(x86.OpMovaps))

	f.a.ClearNeeded()
	f.a.AllocVF(0, NoSlot, 7, Read)
	assert.Equal(t, 1, f.out.Count(x86.OpMovaps))

	// same register index in the other vector unit is a different value
	s3 := f.a.AllocVF(1, NoSlot, 7, Read)
	assert.NotEqual(t, s1, s3)
	assert.Equal(t, 2, f.out.Count(x86.OpMovaps))
}

func TestClassLoads(t *testing.T) {
	tests := []struct {
		name string
		bind func(a *Allocator) int
		op   x86.Op
	}{
		{"gpr", func(a *Allocator) int { return a.AllocGPR(NoSlot, 2, Read) }, x86.OpMovdqa},
		{"hi", func(a *Allocator) int { return a.AllocGPR(NoSlot, guest.GPRHi, Read) }, x86.OpMovdqa},
		{"fpr", func(a *Allocator) int { return a.AllocFP(NoSlot, 2, Read) }, x86.OpMovss},
		{"fpacc", func(a *Allocator) int { return a.AllocFPAcc(NoSlot, Read) }, x86.OpMovss},
		{"vf", func(a *Allocator) int { return a.AllocVF(0, NoSlot, 2, Read) }, x86.OpMovaps},
		{"acc", func(a *Allocator) int { return a.AllocVFAcc(1, NoSlot, Read) }, x86.OpMovaps},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{Slots: 4}, nil)
			s := tt.bind(f.a)
			require.Len(t, f.out.Listing(), 1)
			in := f.out.Listing()[0]
			assert.Equal(t, tt.op, in.Op)
			assert.Equal(t, x86.XMM(s), in.Dst.XMM())
			assert.Equal(t, f.a.Address(f.a.Slot(s).Class, f.a.Slot(s).Index, f.a.Slot(s).Ctx), in.Src.Mem)
			assert.Equal(t, Cached, f.a.Slot(s).State)
		})
	}
}

func TestFloatLoadZeroExtends(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	f.m.SetUint32(f.off(guest.ClassFPR, 3, 0), 0x3F800000)
	s := f.a.AllocFP(NoSlot, 3, Read)
	f.m.XMM[s] = sim.Vec{9, 9, 9, 9}
	f.sync()
	assert.Equal(t, sim.Vec{0x3F800000, 0, 0, 0}, f.m.XMM[s])
}

func TestMigrateToExplicitSlot(t *testing.T) {
	f := newFixture(t, Config{Slots: 8}, nil)
	f.m.SetVec(f.off(guest.ClassVF, 3, 0), sim.Vec{1, 2, 3, 4})

	s := f.a.AllocVF(0, NoSlot, 3, Read)
	f.a.ClearNeeded()
	mark := f.mark()
	moved := f.a.AllocVF(0, 5, 3, Write)
	require.NotEqual(t, s, moved)
	assert.Equal(t, 5, moved)
	assert.Equal(t, []x86.Op{x86.OpMovaps}, f.ops(mark), "copied register to register")
	assert.False(t, f.a.Slot(s).InUse)
	assert.Equal(t, DirtyCached, f.a.Slot(moved).State)
	assert.Equal(t, moved, f.a.Find(guest.ClassVF, 3, 0))
	f.sync()
	assert.Equal(t, sim.Vec{1, 2, 3, 4}, f.m.XMM[moved])
}

func TestMigrateKeepsPendingWrite(t *testing.T) {
	f := newFixture(t, Config{Slots: 8}, nil)
	s := f.a.AllocGPR(NoSlot, 4, Write)
	f.sync()
	f.m.XMM[s] = sim.Vec{7, 7, 7, 7}
	f.a.ClearNeeded()

	other := (s + 3) % 8
	moved := f.a.AllocGPR(other, 4, Read)
	assert.Equal(t, other, moved)
	assert.Equal(t, DirtyCached, f.a.Slot(moved).State)
	assert.Zero(t, countStores(f.out.Listing()), "old slot is freed without writeback")

	f.a.ClearNeeded()
	f.a.FreeAll()
	f.sync()
	assert.Equal(t, sim.Vec{7, 7, 7, 7}, f.m.Vec(f.off(guest.ClassGPR, 4, 0)))
}

func TestExplicitSlotEvictsOccupant(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	f.a.AllocFP(2, 1, Write)
	f.a.ClearNeeded()
	mark := f.mark()
	s := f.a.AllocFP(2, 3, Read)
	assert.Equal(t, 2, s)
	assert.Equal(t, []x86.Op{x86.OpMovss, x86.OpMovss}, f.ops(mark))
	assert.True(t, f.out.Listing()[mark].Stores(), "old value written back first")
	assert.Equal(t, NoSlot, f.a.Find(guest.ClassFPR, 1, 0))
}

func TestExplicitPinnedSlotIsFault(t *testing.T) {
	needAssertions(t)
	f := newFixture(t, Config{Slots: 4}, nil)
	f.a.AllocFP(2, 1, Read)
	err := Run(func() { f.a.AllocTemp(FloatPacked, 2) })
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestAltFileTransfer(t *testing.T) {
	alt := newFakeAlt()
	alt.regs[6] = altEntry{reg: 2, dirty: true}
	f := newFixture(t, Config{Slots: 4}, alt)
	off := f.off(guest.ClassGPR, 6, 0)
	f.m.SetVec(off, sim.Vec{1, 2, 3, 4})
	f.m.MMX[2] = 0x11112222_33334444

	s := f.a.AllocGPR(NoSlot, 6, Read)
	f.sync()

	assert.Equal(t, []x86.Op{x86.OpMovq2dq, x86.OpPunpcklqdq, x86.OpPunpckhqdq, x86.OpMovqMMX}, f.ops(0))
	assert.Equal(t, sim.Vec{0x33334444, 0x11112222, 3, 4}, f.m.XMM[s])
	assert.Equal(t, uint64(0x11112222_33334444), f.m.Uint64(off), "dirty MMX copy reaches memory")
	assert.Equal(t, []evictCall{{6, FlushDrop}}, alt.evicted)
	assert.Equal(t, Cached, f.a.Slot(s).State)
	assert.Equal(t, 1, f.a.Pressure().Transfers)
}

func TestAltFileTransferForWrite(t *testing.T) {
	alt := newFakeAlt()
	alt.regs[6] = altEntry{reg: 1, dirty: true}
	f := newFixture(t, Config{Slots: 4}, alt)
	f.a.AllocGPR(NoSlot, 6, Read|Write)
	assert.Zero(t, f.out.Count(x86.OpMovqMMX), "a write bind owns the value, no MMX store")
	assert.Equal(t, 1, f.out.Count(x86.OpMovq2dq))
}

func TestAltFileEvictedOnWriteOnlyBind(t *testing.T) {
	alt := newFakeAlt()
	alt.regs[9] = altEntry{reg: 0, dirty: true}
	f := newFixture(t, Config{Slots: 4}, alt)
	f.a.AllocGPR(NoSlot, 9, Write)
	assert.Equal(t, []evictCall{{9, FlushFree}}, alt.evicted)
	assert.Zero(t, f.out.Count(x86.OpMovq2dq))
}

func TestAltFileNotConsultedWithoutCopy(t *testing.T) {
	alt := newFakeAlt()
	f := newFixture(t, Config{Slots: 4}, alt)
	f.a.AllocGPR(NoSlot, 9, Read)
	assert.Equal(t, []x86.Op{x86.OpMovdqa}, f.ops(0))
	assert.Empty(t, alt.evicted)
}

func TestConstantFlushedBeforeLoad(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	f.consts.Set(9, 0x00000001_00000002)

	s := f.a.AllocGPR(NoSlot, 9, Read)
	f.sync()
	assert.Equal(t, []x86.Op{x86.OpMov32, x86.OpMov32, x86.OpMovdqa}, f.ops(0))
	assert.Equal(t, uint32(2), f.m.XMM[s][0])
	assert.Equal(t, uint32(1), f.m.XMM[s][1])
	assert.True(t, f.consts.Has(9), "reading keeps the constant")
}

func TestWriteBindInvalidatesConstant(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	f.consts.Set(11, 42)
	f.a.AllocGPR(NoSlot, 11, Write)
	assert.False(t, f.consts.Has(11))
	assert.Empty(t, f.out.Listing())

	// also when the register is already bound
	f.a.ClearNeeded()
	f.consts.Set(11, 43)
	f.a.AllocGPR(NoSlot, 11, Write)
	assert.False(t, f.consts.Has(11))
}

func TestAddressOfUnflushedConstant(t *testing.T) {
	needAssertions(t)
	f := newFixture(t, Config{Slots: 4}, nil)
	f.consts.Set(10, 1)
	err := Run(func() { f.a.Address(guest.ClassGPR, 10, 0) })
	assert.ErrorIs(t, err, ErrInvariant)

	f.consts.Flush(f.out, f.l, 10)
	assert.Equal(t, f.l.Addr(guest.ClassGPR, 10, 0), f.a.Address(guest.ClassGPR, 10, 0))
}

func TestCheck(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	i, ok := f.a.Check(guest.ClassGPR, 3, 0, Read)
	assert.False(t, ok)
	assert.Equal(t, NoSlot, i)
	assert.Empty(t, f.out.Listing(), "a miss emits nothing")

	s := f.a.AllocVF(0, NoSlot, 1, 0)
	f.a.ClearNeeded()
	assert.Equal(t, Invalid, f.a.Slot(s).State)
	before := f.a.Slot(s).Counter

	i, ok = f.a.Check(guest.ClassVF, 1, 0, ReadHalf)
	require.True(t, ok)
	assert.Equal(t, s, i)
	assert.Equal(t, []x86.Op{x86.OpMovlps}, f.ops(0))
	assert.Equal(t, Invalid, f.a.Slot(s).State, "half read does not validate the register")
	assert.True(t, f.a.Slot(s).Needed)
	assert.Greater(t, f.a.Slot(s).Counter, before)

	f.a.Check(guest.ClassVF, 1, 0, Read)
	assert.Equal(t, []x86.Op{x86.OpMovlps, x86.OpMovaps}, f.ops(0))
	assert.Equal(t, Cached, f.a.Slot(s).State)

	f.a.Check(guest.ClassVF, 1, 0, Read|ReadHalf)
	assert.Len(t, f.out.Listing(), 2, "valid register needs no load")

	f.a.Check(guest.ClassVF, 1, 0, Write)
	assert.Equal(t, DirtyCached, f.a.Slot(s).State)
}

func TestCheckHalfInteger(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	f.m.SetVec(f.off(guest.ClassGPR, 12, 0), sim.Vec{5, 6, 7, 8})
	s := f.a.AllocGPR(NoSlot, 12, 0)
	f.m.XMM[s] = sim.Vec{9, 9, 9, 9}
	f.a.Check(guest.ClassGPR, 12, 0, ReadHalf)
	f.sync()
	assert.Equal(t, []x86.Op{x86.OpMovq}, f.ops(0))
	assert.Equal(t, sim.Vec{5, 6, 0, 0}, f.m.XMM[s])
}

func TestDirtyPartialReadMerges(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	off := f.off(guest.ClassVF, 2, 0)
	f.m.SetVec(off, sim.Vec{1, 2, 3, 4})

	s := f.a.AllocVF(0, NoSlot, 2, Write|PartialXY)
	f.sync()
	f.m.XMM[s] = sim.Vec{10, 20, 0xBAD, 0xBAD}
	f.a.ClearNeeded()
	assert.Equal(t, DirtyCached, f.a.Slot(s).State)
	assert.Equal(t, LowXY, f.a.Slot(s).Partial)

	mark := f.mark()
	f.a.AllocVF(0, NoSlot, 2, Read)
	f.sync()
	assert.Equal(t, []x86.Op{x86.OpMovlps, x86.OpMovaps}, f.ops(mark))
	assert.Equal(t, sim.Vec{10, 20, 3, 4}, f.m.XMM[s])
	assert.Equal(t, Cached, f.a.Slot(s).State)
	assert.Equal(t, Full, f.a.Slot(s).Partial)
}

func TestPartialWidening(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	s := f.a.AllocVF(0, NoSlot, 8, Write|PartialXY)
	f.a.AllocVF(0, NoSlot, 8, Write|PartialXYZ)
	assert.Equal(t, LowXYZ, f.a.Slot(s).Partial)
	f.a.AllocVF(0, NoSlot, 8, Write|PartialXY)
	assert.Equal(t, LowXYZ, f.a.Slot(s).Partial, "shape never narrows")
	f.a.AllocVF(0, NoSlot, 8, Write)
	assert.Equal(t, Full, f.a.Slot(s).Partial)

	// a partial write to a loaded register makes every lane authoritative
	r := f.a.AllocVF(0, NoSlot, 9, Read)
	f.a.AllocVF(0, NoSlot, 9, Write|PartialXY)
	assert.Equal(t, Full, f.a.Slot(r).Partial)

	// GPRs have no lanes
	g := f.a.AllocGPR(NoSlot, 1, Write|PartialXY)
	assert.Equal(t, Full, f.a.Slot(g).Partial)
}

func TestDeletePolicies(t *testing.T) {
	tests := []struct {
		policy FlushPolicy
		stores int
		bound  bool
		state  State
	}{
		{FlushFree, 1, false, Invalid},
		{FlushKeep, 1, true, Cached},
		{FlushDrop, 0, false, Invalid},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			f := newFixture(t, Config{Slots: 4}, nil)
			s := f.a.AllocGPR(NoSlot, 7, Write)
			f.a.ClearNeeded()
			f.a.DeleteGPR(7, tt.policy)
			assert.Equal(t, tt.stores, countStores(f.out.Listing()))
			assert.Equal(t, tt.bound, f.a.Slot(s).InUse)
			if tt.bound {
				assert.Equal(t, tt.state, f.a.Slot(s).State)
			}
			// deleting again is harmless
			f.a.DeleteGPR(7, tt.policy)
			assert.Equal(t, tt.stores, countStores(f.out.Listing()))
		})
	}
}

func TestDeleteFamily(t *testing.T) {
	f := newFixture(t, Config{Slots: 8}, nil)
	f.a.AllocFP(NoSlot, 1, Write)
	f.a.AllocFPAcc(NoSlot, Write)
	f.a.AllocVF(1, NoSlot, 3, Write)
	f.a.AllocVFAcc(1, NoSlot, Write)
	f.a.ClearNeeded()

	f.a.DeleteFP(1, FlushFree)
	f.a.DeleteFPAcc(FlushKeep)
	f.a.DeleteVF(0, 3, FlushFree) // other vector unit, nothing bound
	f.a.DeleteVF(1, 3, FlushFree)
	f.a.DeleteVFAcc(1, FlushDrop)

	assert.Equal(t, 3, countStores(f.out.Listing()))
	assert.Equal(t, 1, f.a.Table().InUse())
	assert.Equal(t, 0, f.a.NumDirty())
	assert.NotEqual(t, NoSlot, f.a.Find(guest.ClassFPACC, 0, 0))
}

func TestDeleteKeepPartialNeedsReload(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	s := f.a.AllocVF(0, NoSlot, 6, Write|PartialXY)
	f.a.ClearNeeded()
	f.a.Delete(guest.ClassVF, 6, 0, FlushKeep)
	assert.Equal(t, Invalid, f.a.Slot(s).State)
	f.a.AllocVF(0, NoSlot, 6, Read)
	assert.Equal(t, []x86.Op{x86.OpMovlps, x86.OpMovaps}, f.ops(0))
}

func TestFlushAllKeepsBindings(t *testing.T) {
	f := newFixture(t, Config{Slots: 8}, nil)
	f.a.AllocGPR(NoSlot, 1, Write)
	f.a.AllocGPR(NoSlot, 2, Read)
	f.a.AllocFP(NoSlot, 3, Read|Write)
	f.a.ClearNeeded()
	assert.Equal(t, 2, f.a.NumDirty())

	f.a.FlushAll()
	assert.Equal(t, 2, countStores(f.out.Listing()))
	assert.Equal(t, 3, f.a.Table().InUse())
	assert.Zero(t, f.a.NumDirty())

	f.a.FlushAll()
	assert.Equal(t, 2, countStores(f.out.Listing()), "clean registers are not stored twice")

	f.a.FreeAll()
	assert.Equal(t, 2, countStores(f.out.Listing()))
	assert.Zero(t, f.a.Table().InUse())
}

func TestBulkFlushRejectsTemps(t *testing.T) {
	needAssertions(t)
	f := newFixture(t, Config{Slots: 4}, nil)
	f.a.AllocTemp(Integer, NoSlot)
	assert.ErrorIs(t, Run(f.a.FlushAll), ErrInvariant)
	assert.ErrorIs(t, Run(f.a.FreeAll), ErrInvariant)
	assert.ErrorIs(t, Run(f.a.ClearNeeded), ErrInvariant)
}

func TestClearNeeded(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	s := f.a.AllocGPR(NoSlot, 1, Write)
	r := f.a.AllocGPR(NoSlot, 2, Read)
	tmp := f.a.AllocTemp(FloatPacked, NoSlot)
	assert.Equal(t, 3, f.a.Pinned())

	f.a.Free(tmp)
	f.a.ClearNeeded()
	assert.Zero(t, f.a.Pinned())
	assert.Equal(t, DirtyCached, f.a.Slot(s).State, "written value is readable")
	assert.Equal(t, Cached, f.a.Slot(r).State)

	f.a.AllocGPR(NoSlot, 1, Read)
	assert.Equal(t, 1, countLoads(f.out.Listing()), "no reload after the instruction boundary")
}

func TestAddNeeded(t *testing.T) {
	f := newFixture(t, Config{Slots: 8}, nil)
	slots := []int{
		f.a.AllocGPR(NoSlot, 1, Read),
		f.a.AllocFP(NoSlot, 1, Read),
		f.a.AllocFPAcc(NoSlot, Read),
		f.a.AllocVF(1, NoSlot, 1, Read),
		f.a.AllocVFAcc(1, NoSlot, Read),
	}
	f.a.ClearNeeded()
	states := make([]State, len(slots))
	for i, s := range slots {
		states[i] = f.a.Slot(s).State
	}

	f.a.AddNeededGPR(1)
	f.a.AddNeededFP(1)
	f.a.AddNeededFPAcc()
	f.a.AddNeededVF(1, 1)
	f.a.AddNeededVFAcc(1)
	f.a.AddNeededVF(0, 1) // not bound
	f.a.Pin(guest.ClassGPR, 30, 0)

	for i, s := range slots {
		assert.True(t, f.a.Slot(s).Needed)
		assert.Equal(t, states[i], f.a.Slot(s).State)
	}
	assert.Equal(t, len(slots), f.a.Pinned())
	assert.Equal(t, len(slots), countLoads(f.out.Listing()))
}

func TestTouchRecording(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	var in liveness.Inst
	in.Clear()
	f.a.SetInst(&in)
	assert.Same(t, &in, f.a.Inst())

	f.a.AllocGPR(NoSlot, 3, Read)
	f.a.AllocVF(1, NoSlot, 2, Write)
	f.a.AllocTemp(Integer, NoSlot)

	assert.True(t, in.Reads(guest.ClassGPR, 3))
	assert.True(t, in.Writes(guest.ClassVF, 2))
	assert.False(t, in.Writes(guest.ClassGPR, 3))
	assert.Equal(t, 0, liveness.IsRegWritten([]liveness.Inst{in}, guest.ClassGPR, 3))
	assert.Equal(t, 1, liveness.IsRegWritten([]liveness.Inst{in}, guest.ClassVF, 2))
}

func TestTouchTableOverflowIsFault(t *testing.T) {
	needAssertions(t)
	f := newFixture(t, Config{Slots: 4}, nil)
	var in liveness.Inst
	in.Clear()
	f.a.SetInst(&in)

	f.a.AllocGPR(NoSlot, 1, Write)
	f.a.AllocGPR(NoSlot, 2, Write)
	f.a.AllocGPR(NoSlot, 1, Write)
	assert.Equal(t, 1, liveness.IsRegWritten([]liveness.Inst{in}, guest.ClassGPR, 2))

	err := f.a.Run(func() { f.a.AllocGPR(NoSlot, 3, Write) })
	assert.ErrorIs(t, err, ErrInvariant)
	assert.Equal(t, 1, f.a.Pressure().Faults)
}

func TestTouchReadTableHoldsFour(t *testing.T) {
	needAssertions(t)
	f := newFixture(t, Config{Slots: 8}, nil)
	var in liveness.Inst
	in.Clear()
	f.a.SetInst(&in)

	for _, r := range []int{1, 2, 3, 4} {
		f.a.AllocGPR(NoSlot, r, Read)
	}
	err := Run(func() { f.a.AllocFP(NoSlot, 1, Read) })
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestCheckIgnoresIndexOfSingleClasses(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	acc := f.a.AllocFPAcc(NoSlot, Read)
	vacc := f.a.AllocVFAcc(1, NoSlot, Read)

	i, ok := f.a.Check(guest.ClassFPACC, 5, 3, Read)
	assert.True(t, ok)
	assert.Equal(t, acc, i)

	i, ok = f.a.Check(guest.ClassACC, 9, 1, Read)
	assert.True(t, ok)
	assert.Equal(t, vacc, i)

	_, ok = f.a.Check(guest.ClassACC, 0, 0, Read)
	assert.False(t, ok, "the context still matters for vector accumulators")
	assert.Equal(t, acc, f.a.Find(guest.ClassFPACC, 7, 0))
	assert.Equal(t, 2, countLoads(f.out.Listing()), "hits do not reload")
}

func TestAllocCheck(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	var in liveness.Inst
	in.Clear()

	assert.Equal(t, NoSlot, f.a.AllocCheckGPR(&in, 5, Read), "no XMM residency wanted, nothing bound")
	assert.Equal(t, NoSlot, f.a.AllocCheckFP(&in, 5, Read))
	assert.Empty(t, f.out.Listing())

	in.Regs[5] |= liveness.XMM
	in.FPURegs[5] |= liveness.XMM
	g := f.a.AllocCheckGPR(&in, 5, Read)
	fp := f.a.AllocCheckFP(&in, 5, Read)
	assert.NotEqual(t, NoSlot, g)
	assert.NotEqual(t, NoSlot, fp)

	// once bound, the check path finds it
	in.Clear()
	assert.Equal(t, g, f.a.AllocCheckGPR(&in, 5, Read))
	assert.Equal(t, 2, countLoads(f.out.Listing()))
}

func TestReinit(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	f.a.AllocGPR(NoSlot, 1, Write)
	f.a.AllocTemp(Integer, NoSlot)
	f.a.Reinit()
	assert.Zero(t, f.a.Table().InUse())
	assert.Zero(t, f.a.Table().Counter())
	assert.Zero(t, f.a.Table().Cursor())
	assert.Nil(t, f.a.Inst())
	assert.Zero(t, f.a.Pressure().Peak)
}

func TestCounterIncreases(t *testing.T) {
	f := newFixture(t, Config{Slots: 4}, nil)
	var last uint32
	for i := 1; i < 20; i++ {
		s := f.a.AllocGPR(NoSlot, i, Read)
		c := f.a.Slot(s).Counter
		if i > 1 {
			assert.Greater(t, c, last)
		}
		last = c
		f.a.ClearNeeded()
	}
	assert.Equal(t, uint32(19), f.a.Table().Counter())
}

func TestPressureAndDump(t *testing.T) {
	var log bytes.Buffer
	f := newFixture(t, Config{Slots: 4, Verbose: true, Log: &log}, nil)
	f.a.AllocGPR(NoSlot, 3, Read)
	f.a.AllocVF(1, NoSlot, 2, Write|PartialXYZ)
	f.a.AllocFP(NoSlot, 1, Read)
	f.a.AllocFPAcc(NoSlot, Read)

	st := f.a.Pressure()
	assert.Equal(t, 4, st.InUse)
	assert.Equal(t, 4, st.Peak)
	assert.Equal(t, 1, st.Dirty)
	assert.Equal(t, 3, st.Loads)
	assert.InDelta(t, 1.0, st.Pressure, 1e-9)
	assert.True(t, st.IsSpillHeavy())

	var buf bytes.Buffer
	f.a.Dump(&buf)
	assert.Contains(t, buf.String(), "r3")
	assert.Contains(t, buf.String(), "vu1.vf02")
	assert.Contains(t, buf.String(), "xyz")
	assert.Contains(t, buf.String(), "needed")

	buf.Reset()
	f.a.ReportPressure(&buf, "test")
	assert.Contains(t, buf.String(), "4/4 used")
	assert.Contains(t, buf.String(), "high pressure")

	assert.Contains(t, log.String(), "DEBUG xmm: bind r3 -> xmm")
}

func TestModeParsing(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"read", Read},
		{"r|w", Read | Write},
		{"rw", Read | Write},
		{"write,xyz", Write | PartialXYZ},
		{"w|xy", Write | PartialXY},
		{"half", ReadHalf},
		{"none", 0},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseMode("read|bogus")
	assert.Error(t, err)
	assert.Equal(t, "write|xyz", (Write | PartialXYZ).String())
	assert.Equal(t, "none", Mode(0).String())
}
