// Completion: 100% - Listing module complete
package x86

import (
	"fmt"
	"strings"
)

// Op identifies one emitted instruction form
type Op uint8

const (
	OpInvalid Op = iota
	OpMovaps
	OpMovdqa
	OpMovss
	OpMovlps
	OpMovhlps
	OpShufps
	OpMovq      // movq xmm, m64 (zero-extends)
	OpMovd      // movd m32, xmm
	OpPsrad     // psrad xmm, imm8
	OpPxor      // pxor xmm, xmm
	OpPunpcklqdq
	OpPunpckhqdq
	OpMovq2dq
	OpMovqMMX // movq between mm and m64
	OpExtractps
	OpSar32 // sar dword [m], imm8
	OpMov32 // mov dword [m], imm32
	OpEmms
	numOps
)

var opNames = [numOps]string{
	OpInvalid:    "(invalid)",
	OpMovaps:     "movaps",
	OpMovdqa:     "movdqa",
	OpMovss:      "movss",
	OpMovlps:     "movlps",
	OpMovhlps:    "movhlps",
	OpShufps:     "shufps",
	OpMovq:       "movq",
	OpMovd:       "movd",
	OpPsrad:      "psrad",
	OpPxor:       "pxor",
	OpPunpcklqdq: "punpcklqdq",
	OpPunpckhqdq: "punpckhqdq",
	OpMovq2dq:    "movq2dq",
	OpMovqMMX:    "movq",
	OpExtractps:  "extractps",
	OpSar32:      "sar",
	OpMov32:      "mov",
	OpEmms:       "emms",
}

func (op Op) String() string {
	if op < numOps {
		return opNames[op]
	}
	return fmt.Sprintf("op?%d", uint8(op))
}

// OperandKind tells which field of an Operand is meaningful
type OperandKind uint8

const (
	KindNone OperandKind = iota
	KindXMM
	KindMMX
	KindMem
)

// Operand is a register or memory operand of a listed instruction.
// Width is the memory access size in bytes and is only set for KindMem.
type Operand struct {
	Kind  OperandKind
	Reg   uint8
	Mem   Mem
	Width int
}

func xmmOp(x XMM) Operand { return Operand{Kind: KindXMM, Reg: uint8(x)} }
func mmxOp(m MMX) Operand { return Operand{Kind: KindMMX, Reg: uint8(m)} }
func memOp(m Mem, width int) Operand {
	return Operand{Kind: KindMem, Mem: m, Width: width}
}

// IsMem reports whether the operand addresses memory
func (o Operand) IsMem() bool { return o.Kind == KindMem }

// XMM returns the operand as an SSE register
func (o Operand) XMM() XMM { return XMM(o.Reg) }

// MMX returns the operand as an MMX register
func (o Operand) MMX() MMX { return MMX(o.Reg) }

func (o Operand) String() string {
	switch o.Kind {
	case KindXMM:
		return XMM(o.Reg).String()
	case KindMMX:
		return MMX(o.Reg).String()
	case KindMem:
		return widthName(o.Width) + " " + o.Mem.String()
	}
	return ""
}

func widthName(w int) string {
	switch w {
	case 4:
		return "dword"
	case 8:
		return "qword"
	case 16:
		return "xmmword"
	}
	return "ptr"
}

// Inst is one listed instruction: what the encoder wrote, in decoded form.
// Imm carries the imm8 of shufps/psrad/extractps/sar or the imm32 of mov.
type Inst struct {
	Op     Op
	Dst    Operand
	Src    Operand
	Imm    int64
	HasImm bool
	Offset int // byte offset of the encoding in the code buffer
	Size   int // encoded length in bytes
}

// Loads reports whether the instruction reads guest memory
func (in Inst) Loads() bool {
	return in.Src.IsMem()
}

// Stores reports whether the instruction writes guest memory
func (in Inst) Stores() bool {
	return in.Dst.IsMem()
}

func (in Inst) String() string {
	var sb strings.Builder
	sb.WriteString(in.Op.String())
	var ops []string
	if in.Dst.Kind != KindNone {
		ops = append(ops, in.Dst.String())
	}
	if in.Src.Kind != KindNone {
		ops = append(ops, in.Src.String())
	}
	if in.HasImm {
		if in.Imm < 0 || in.Imm > 9 {
			ops = append(ops, fmt.Sprintf("0x%x", uint32(in.Imm)))
		} else {
			ops = append(ops, fmt.Sprintf("%d", in.Imm))
		}
	}
	if len(ops) > 0 {
		sb.WriteByte(' ')
		sb.WriteString(strings.Join(ops, ", "))
	}
	return sb.String()
}
