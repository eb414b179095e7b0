package xmmreg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/xmmcache/internal/guest"
	"github.com/xyproto/xmmcache/internal/sim"
	"github.com/xyproto/xmmcache/internal/x86"
)

// fixture is an allocator wired to a simulated machine. sync runs whatever
// was emitted since the previous sync so tests can inject register values
// the way translated code would produce them.
type fixture struct {
	t      *testing.T
	out    *x86.Out
	a      *Allocator
	l      *guest.Layout
	consts *guest.ConstRegs
	m      *sim.Machine
	ran    int
}

func newFixture(t *testing.T, cfg Config, alt AltFile) *fixture {
	t.Helper()
	f := &fixture{t: t, out: x86.NewOut(), l: guest.DefaultLayout(), consts: &guest.ConstRegs{}}
	a, err := New(cfg, f.out, f.l, f.consts, alt)
	require.NoError(t, err)
	f.a = a
	f.m = sim.New(f.l.Base, int(f.l.Size))
	return f
}

func (f *fixture) sync() {
	f.t.Helper()
	require.NoError(f.t, f.m.Run(f.out.Since(f.ran)))
	f.ran = len(f.out.Listing())
}

// ops returns the ops emitted since mark
func (f *fixture) ops(mark int) []x86.Op {
	var ops []x86.Op
	for _, in := range f.out.Since(mark) {
		ops = append(ops, in.Op)
	}
	return ops
}

func (f *fixture) mark() int { return len(f.out.Listing()) }

func (f *fixture) off(c guest.Class, index, ctx int) int32 {
	return f.l.Offset(c, index, ctx)
}

func countLoads(listing []x86.Inst) int {
	n := 0
	for _, in := range listing {
		if in.Loads() {
			n++
		}
	}
	return n
}

func countStores(listing []x86.Inst) int {
	n := 0
	for _, in := range listing {
		if in.Stores() {
			n++
		}
	}
	return n
}

func needAssertions(t *testing.T) {
	if !assertionsEnabled {
		t.Skip("assertions are compiled out")
	}
}

type evictCall struct {
	gpr    int
	policy FlushPolicy
}

type altEntry struct {
	reg   x86.MMX
	dirty bool
}

// fakeAlt is an alternate register file that only records the handshake
type fakeAlt struct {
	regs    map[int]altEntry
	evicted []evictCall
}

func newFakeAlt() *fakeAlt {
	return &fakeAlt{regs: make(map[int]altEntry)}
}

func (f *fakeAlt) Lookup(gpr int) (x86.MMX, bool, bool) {
	e, ok := f.regs[gpr]
	return e.reg, e.dirty, ok
}

func (f *fakeAlt) Evict(gpr int, policy FlushPolicy) {
	f.evicted = append(f.evicted, evictCall{gpr, policy})
	if policy == FlushKeep {
		if e, ok := f.regs[gpr]; ok {
			e.dirty = false
			f.regs[gpr] = e
		}
		return
	}
	delete(f.regs, gpr)
}
