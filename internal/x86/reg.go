// Completion: 100% - Register definitions complete
package x86

import "fmt"

// Register definitions for the host registers the XMM cache touches.
// Encodings are the 4-bit ModRM/REX values.

// GPR is a 64-bit general purpose host register.
type GPR uint8

const (
	RAX GPR = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var gprNames = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func (r GPR) String() string {
	if int(r) < len(gprNames) {
		return gprNames[r]
	}
	return fmt.Sprintf("gpr?%d", uint8(r))
}

// ParseGPR looks up a general purpose register by name
func ParseGPR(name string) (GPR, bool) {
	for i, n := range gprNames {
		if n == name {
			return GPR(i), true
		}
	}
	return 0, false
}

// XMM is a 128-bit SSE register (xmm0-xmm15)
type XMM uint8

// NumXMM is the number of SSE registers addressable in 64-bit mode
const NumXMM = 16

func (x XMM) String() string {
	return fmt.Sprintf("xmm%d", uint8(x))
}

// MMX is a 64-bit MMX register (mm0-mm7)
type MMX uint8

// NumMMX is the number of MMX registers
const NumMMX = 8

func (m MMX) String() string {
	return fmt.Sprintf("mm%d", uint8(m))
}

// Mem is a [base + disp32] memory operand
type Mem struct {
	Base GPR
	Disp int32
}

// Offset returns the operand displaced by d bytes
func (m Mem) Offset(d int32) Mem {
	return Mem{Base: m.Base, Disp: m.Disp + d}
}

func (m Mem) String() string {
	switch {
	case m.Disp == 0:
		return fmt.Sprintf("[%s]", m.Base)
	case m.Disp < 0:
		return fmt.Sprintf("[%s-0x%x]", m.Base, -int64(m.Disp))
	default:
		return fmt.Sprintf("[%s+0x%x]", m.Base, m.Disp)
	}
}
