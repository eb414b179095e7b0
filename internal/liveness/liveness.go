// Completion: 100% - Liveness table complete

// Package liveness holds the per-instruction register usage table produced
// by the analysis pass that runs before translation. The register cache
// only reads the flags; it appends to the small touch tables while binding.
package liveness

import "github.com/xyproto/xmmcache/internal/guest"

// Flag is a per-register liveness bit
type Flag uint8

const (
	Live0   Flag = 1 << iota // live in the current instruction
	Live1                    // upper 64 bits live
	Live2                    // live in a vector register at the next instruction
	LastUse                  // last read of the value in this block
	MMX                      // will be used from the MMX file
	XMM                      // will be used from the XMM file
	Used                     // read again later in the block
)

// Touch table capacity
const (
	NumReads  = 4
	NumWrites = 2
)

// Inst is the liveness entry of one guest instruction
type Inst struct {
	Regs    [guest.NumGPR]Flag
	FPURegs [guest.NumFPR + 1]Flag // f0-f31 and the accumulator

	ReadType  [NumReads]guest.Class
	ReadReg   [NumReads]uint8
	WriteType [NumWrites]guest.Class
	WriteReg  [NumWrites]uint8
}

// Clear resets the entry to the conservative default: every register is
// live and nothing has been touched yet.
func (in *Inst) Clear() {
	*in = Inst{}
	for i := range in.Regs {
		in.Regs[i] = Live0 | Live2
	}
	for i := range in.FPURegs {
		in.FPURegs[i] = Live0
	}
}

// ClearInsts clears every entry of a block
func ClearInsts(insts []Inst) {
	for i := range insts {
		insts[i].Clear()
	}
}

// IsLiveXMM reports whether GPR reg may still be needed from a vector register
func (in *Inst) IsLiveXMM(reg int) bool {
	if reg < 0 || reg >= len(in.Regs) {
		return false
	}
	return in.Regs[reg]&(Live0|Live2) != 0
}

// GPR returns the flags of a general purpose register
func (in *Inst) GPR(reg int) Flag {
	if reg < 0 || reg >= len(in.Regs) {
		return 0
	}
	return in.Regs[reg]
}

// FPR returns the flags of an FPU register; index 32 is the accumulator
func (in *Inst) FPR(reg int) Flag {
	if reg < 0 || reg >= len(in.FPURegs) {
		return 0
	}
	return in.FPURegs[reg]
}

// FillRegister records that this instruction reads or writes a register.
// Entries already present are not duplicated. Temp registers are never
// recorded. It returns false when the touch table is full.
func (in *Inst) FillRegister(class guest.Class, reg int, write bool) bool {
	if class == guest.ClassTemp {
		return true
	}
	types, regs := in.ReadType[:], in.ReadReg[:]
	if write {
		types, regs = in.WriteType[:], in.WriteReg[:]
	}
	for i := range types {
		if types[i] == class && int(regs[i]) == reg {
			return true
		}
		if types[i] == guest.ClassTemp {
			types[i] = class
			regs[i] = uint8(reg)
			return true
		}
	}
	return false
}

// Writes reports whether the instruction writes the register
func (in *Inst) Writes(class guest.Class, reg int) bool {
	for i, t := range in.WriteType {
		if t == class && t != guest.ClassTemp && int(in.WriteReg[i]) == reg {
			return true
		}
	}
	return false
}

// Reads reports whether the instruction reads the register
func (in *Inst) Reads(class guest.Class, reg int) bool {
	for i, t := range in.ReadType {
		if t == class && t != guest.ClassTemp && int(in.ReadReg[i]) == reg {
			return true
		}
	}
	return false
}

// IsRegWritten returns the 1-based position of the first instruction in
// insts that writes the register, or 0 if none does.
func IsRegWritten(insts []Inst, class guest.Class, reg int) int {
	for i := range insts {
		if insts[i].Writes(class, reg) {
			return i + 1
		}
	}
	return 0
}
