// Completion: 100% - Guest state layout complete
package guest

import (
	"fmt"

	"github.com/xyproto/xmmcache/internal/x86"
)

// Class is the kind of guest entity a host register can cache.
// ClassTemp is the zero value: it never aliases guest state and doubles as
// the "empty" marker in the per-instruction touch tables.
type Class uint8

const (
	ClassTemp  Class = iota // scratch value, no guest backing
	ClassVF                 // vector unit register VF00-VF31
	ClassACC                // vector unit accumulator
	ClassFPR                // FPU register f0-f31
	ClassFPACC              // FPU accumulator
	ClassGPR                // 128-bit general purpose register (plus HI/LO)
)

func (c Class) String() string {
	switch c {
	case ClassTemp:
		return "temp"
	case ClassVF:
		return "vf"
	case ClassACC:
		return "acc"
	case ClassFPR:
		return "fpr"
	case ClassFPACC:
		return "fpacc"
	case ClassGPR:
		return "gpr"
	default:
		return "unknown"
	}
}

// ParseClass parses a class name as written in traces and dumps
func ParseClass(s string) (Class, error) {
	switch s {
	case "temp":
		return ClassTemp, nil
	case "vf":
		return ClassVF, nil
	case "acc":
		return ClassACC, nil
	case "fpr", "fp":
		return ClassFPR, nil
	case "fpacc":
		return ClassFPACC, nil
	case "gpr":
		return ClassGPR, nil
	}
	return 0, fmt.Errorf("unknown register class: %s (supported: gpr, fpr, fpacc, vf, acc, temp)", s)
}

// Vector reports whether the class belongs to a vector unit context
func (c Class) Vector() bool {
	return c == ClassVF || c == ClassACC
}

// Single reports whether the class names exactly one logical register
func (c Class) Single() bool {
	return c == ClassACC || c == ClassFPACC || c == ClassTemp
}

// Register counts
const (
	NumGPR = 34 // r0-r31, HI, LO
	NumFPR = 32
	NumVF  = 32
	NumCtx = 2 // VU0, VU1

	GPRHi = 32
	GPRLo = 33
)

// Layout is the memory map of the guest state block. All guest registers
// are addressed as [Base + disp32] where Base holds the block address at
// run time.
type Layout struct {
	Base  x86.GPR
	GPR   int32
	FPR   int32
	FPACC int32
	VF    [NumCtx]int32
	ACC   [NumCtx]int32
	Size  int32
}

// DefaultLayout returns the packed layout used by the recompiler: every
// 128-bit register sits on a 16-byte boundary relative to the base.
func DefaultLayout() *Layout {
	l := &Layout{Base: x86.RBP}
	off := int32(0)
	l.GPR = off
	off += NumGPR * 16
	l.FPR = off
	off += NumFPR * 4
	l.FPACC = off
	off += 16
	for ctx := 0; ctx < NumCtx; ctx++ {
		l.VF[ctx] = off
		off += NumVF * 16
		l.ACC[ctx] = off
		off += 16
	}
	l.Size = off
	return l
}

// Offset returns the byte offset of a guest register inside the block
func (l *Layout) Offset(c Class, index, ctx int) int32 {
	switch c {
	case ClassGPR:
		l.check(index, NumGPR, c)
		return l.GPR + int32(index)*16
	case ClassFPR:
		l.check(index, NumFPR, c)
		return l.FPR + int32(index)*4
	case ClassFPACC:
		return l.FPACC
	case ClassVF:
		l.check(index, NumVF, c)
		l.check(ctx, NumCtx, c)
		return l.VF[ctx] + int32(index)*16
	case ClassACC:
		l.check(ctx, NumCtx, c)
		return l.ACC[ctx]
	}
	panic(fmt.Errorf("guest: class %s has no memory backing", c))
}

// Addr returns the memory operand of a guest register
func (l *Layout) Addr(c Class, index, ctx int) x86.Mem {
	return x86.Mem{Base: l.Base, Disp: l.Offset(c, index, ctx)}
}

func (l *Layout) check(i, n int, c Class) {
	if i < 0 || i >= n {
		panic(fmt.Errorf("guest: %s index %d out of range [0,%d)", c, i, n))
	}
}
