// Completion: 100% - XMM register cache complete

// Package xmmreg caches guest registers in host XMM registers while a block
// of guest code is translated. One Allocator is owned by one translation
// unit: Reinit at the start, bind/pin/emit/ClearNeeded per guest
// instruction, FreeAll before the emitted code exits.
package xmmreg

import (
	"fmt"
	"io"
	"os"

	"github.com/xyproto/xmmcache/internal/guest"
	"github.com/xyproto/xmmcache/internal/liveness"
	"github.com/xyproto/xmmcache/internal/x86"
)

// Emitter is the part of the code buffer the cache writes to.
// *x86.Out implements it.
type Emitter interface {
	MovapsLoad(dst x86.XMM, src x86.Mem)
	MovapsStore(dst x86.Mem, src x86.XMM)
	MovapsReg(dst, src x86.XMM)
	MovdqaLoad(dst x86.XMM, src x86.Mem)
	MovdqaStore(dst x86.Mem, src x86.XMM)
	MovdqaReg(dst, src x86.XMM)
	MovssLoad(dst x86.XMM, src x86.Mem)
	MovssStore(dst x86.Mem, src x86.XMM)
	MovlpsLoad(dst x86.XMM, src x86.Mem)
	MovlpsStore(dst x86.Mem, src x86.XMM)
	Movhlps(dst, src x86.XMM)
	Shufps(dst, src x86.XMM, imm uint8)
	MovqLoad(dst x86.XMM, src x86.Mem)
	MovdStore(dst x86.Mem, src x86.XMM)
	PsradImm(dst x86.XMM, imm uint8)
	Pxor(dst, src x86.XMM)
	Punpcklqdq(dst, src x86.XMM)
	PunpckhqdqLoad(dst x86.XMM, src x86.Mem)
	Movq2dq(dst x86.XMM, src x86.MMX)
	MovqStoreMMX(dst x86.Mem, src x86.MMX)
	ExtractpsStore(dst x86.Mem, src x86.XMM, lane uint8)
	SarMem32Imm(dst x86.Mem, imm uint8)
	MovMem32Imm(dst x86.Mem, imm uint32)
}

// AltFile is the handshake with the cache of the alternate (MMX) register
// file, which may hold the low 64 bits of a guest GPR.
type AltFile interface {
	// Lookup reports whether GPR gpr is cached in the alternate file, in
	// which register and whether that copy is newer than guest memory.
	Lookup(gpr int) (reg x86.MMX, dirty, ok bool)
	// Evict removes the alternate copy of gpr, writing it back first
	// unless policy is FlushDrop.
	Evict(gpr int, policy FlushPolicy)
}

// Config holds the settings of an allocator
type Config struct {
	Slots   int       // physical XMM registers to use, 1-16 (0 means 16)
	SSE41   bool      // host has SSE4.1 (extractps)
	Verbose bool      // trace decisions to Log
	Log     io.Writer // defaults to os.Stderr
}

// Allocator is the XMM register cache of one translation unit
type Allocator struct {
	cfg        Config
	t          *Table
	out        Emitter
	layout     *guest.Layout
	consts     *guest.ConstRegs
	alt        AltFile
	inst       *liveness.Inst
	strategies []Strategy
	stats      Stats
}

// New creates an allocator. layout and consts may be nil, in which case
// the default layout and an empty constant tracker are used. alt may be nil
// when no alternate register file exists.
func New(cfg Config, out Emitter, layout *guest.Layout, consts *guest.ConstRegs, alt AltFile) (*Allocator, error) {
	if cfg.Slots == 0 {
		cfg.Slots = x86.NumXMM
	}
	if cfg.Slots < 1 || cfg.Slots > x86.NumXMM {
		return nil, fmt.Errorf("xmm slot count %d out of range [1,%d]", cfg.Slots, x86.NumXMM)
	}
	if out == nil {
		return nil, fmt.Errorf("xmm allocator needs an emitter")
	}
	if cfg.Log == nil {
		cfg.Log = os.Stderr
	}
	if layout == nil {
		layout = guest.DefaultLayout()
	}
	if consts == nil {
		consts = &guest.ConstRegs{}
	}
	a := &Allocator{
		cfg:        cfg,
		t:          NewTable(cfg.Slots),
		out:        out,
		layout:     layout,
		consts:     consts,
		alt:        alt,
		strategies: DefaultStrategies(),
	}
	a.stats.Total = cfg.Slots
	return a, nil
}

// Table exposes the slot table for inspection
func (a *Allocator) Table() *Table { return a.t }

// Slot returns the record of slot i
func (a *Allocator) Slot(i int) *Slot { return a.t.Slot(i) }

// Consts returns the constant register tracker shared with the translator
func (a *Allocator) Consts() *guest.ConstRegs { return a.consts }

// Layout returns the guest memory map
func (a *Allocator) Layout() *guest.Layout { return a.layout }

// Config returns the effective configuration
func (a *Allocator) Config() Config { return a.cfg }

// SetStrategies replaces the acquire order. Used by tests to exercise a
// single tier.
func (a *Allocator) SetStrategies(s []Strategy) { a.strategies = s }

// SetInst sets the liveness entry of the instruction being translated.
// A nil entry means no liveness is known: nothing is dead.
func (a *Allocator) SetInst(in *liveness.Inst) { a.inst = in }

// Inst returns the current liveness entry
func (a *Allocator) Inst() *liveness.Inst { return a.inst }

// Reinit empties the table at the start of a translation unit. Registers
// still bound are forgotten without writeback.
func (a *Allocator) Reinit() {
	a.t.Reinit()
	a.inst = nil
	a.stats = Stats{Total: a.t.Len()}
}

func (a *Allocator) debugf(format string, args ...any) {
	if a.cfg.Verbose {
		fmt.Fprintf(a.cfg.Log, "DEBUG xmm: "+format+"\n", args...)
	}
}

func kindOf(c guest.Class) DataKind {
	if c == guest.ClassGPR {
		return Integer
	}
	return FloatPacked
}

func xmm(i int) x86.XMM { return x86.XMM(i) }

// Address returns the guest memory operand of a register. A GPR holding a
// compile-time constant must have been flushed.
func (a *Allocator) Address(c guest.Class, index, ctx int) x86.Mem {
	if c == guest.ClassGPR {
		assertf(!a.consts.Has(index) || a.consts.Flushed(index), "r%d is a constant that was never flushed", index)
	}
	return a.layout.Addr(c, index, ctx)
}

func (a *Allocator) addr(s *Slot) x86.Mem {
	return a.layout.Addr(s.Class, s.Index, s.Ctx)
}

func (a *Allocator) touch(k Key, mode Mode) {
	if a.inst == nil || k.Class == guest.ClassTemp {
		return
	}
	if mode&(Read|ReadHalf) != 0 {
		ok := a.inst.FillRegister(k.Class, k.Index, false)
		assertf(ok, "instruction reads more than %d registers, %s not recorded", liveness.NumReads, k)
	}
	if mode&Write != 0 {
		ok := a.inst.FillRegister(k.Class, k.Index, true)
		assertf(ok, "instruction writes more than %d registers, %s not recorded", liveness.NumWrites, k)
	}
}

// NumDirty returns the number of bound registers owing a writeback
func (a *Allocator) NumDirty() int {
	n := 0
	for _, s := range a.t.slots {
		if s.InUse && s.State.IsDirty() {
			n++
		}
	}
	return n
}

// Find returns the slot bound to a guest register without pinning it
func (a *Allocator) Find(c guest.Class, index, ctx int) int {
	return a.t.Find(keyFor(c, index, ctx))
}
