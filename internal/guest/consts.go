// Completion: 100% - Constant register tracking complete
package guest

import "github.com/xyproto/xmmcache/internal/x86"

// ImmStorer is the slice of the code emitter needed to materialise a
// constant register in guest memory.
type ImmStorer interface {
	MovMem32Imm(dst x86.Mem, imm uint32)
}

// ConstRegs tracks which of r0-r31 currently hold a value known at compile
// time. A constant register is only written to guest memory on demand, so
// anything reading the register from memory must call Flush first.
type ConstRegs struct {
	has     uint32
	flushed uint32
	vals    [32]uint64
}

// Set records that GPR n holds v. The memory copy becomes stale.
func (c *ConstRegs) Set(n int, v uint64) {
	if n <= 0 || n >= 32 {
		return
	}
	c.has |= 1 << uint(n)
	c.flushed &^= 1 << uint(n)
	c.vals[n] = v
}

// Has reports whether GPR n is a known constant
func (c *ConstRegs) Has(n int) bool {
	return n >= 0 && n < 32 && c.has&(1<<uint(n)) != 0
}

// Flushed reports whether the constant in GPR n was already written out
func (c *ConstRegs) Flushed(n int) bool {
	return n >= 0 && n < 32 && c.flushed&(1<<uint(n)) != 0
}

// Value returns the constant held by GPR n
func (c *ConstRegs) Value(n int) (uint64, bool) {
	if !c.Has(n) {
		return 0, false
	}
	return c.vals[n], true
}

// Invalidate forgets the constant in GPR n. Called whenever the register is
// about to be written by generated code.
func (c *ConstRegs) Invalidate(n int) {
	if n < 0 || n >= 32 {
		return
	}
	c.has &^= 1 << uint(n)
	c.flushed &^= 1 << uint(n)
}

// Flush writes the constant of GPR n to guest memory if it is not there
// yet. The register stays constant.
func (c *ConstRegs) Flush(out ImmStorer, l *Layout, n int) {
	if !c.Has(n) || c.Flushed(n) {
		return
	}
	m := l.Addr(ClassGPR, n, 0)
	v := c.vals[n]
	out.MovMem32Imm(m, uint32(v))
	out.MovMem32Imm(m.Offset(4), uint32(v>>32))
	c.flushed |= 1 << uint(n)
}

// Reset forgets all constants
func (c *ConstRegs) Reset() {
	*c = ConstRegs{}
}
