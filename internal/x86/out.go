// Completion: 100% - Code buffer complete
package x86

import (
	"bytes"
	"fmt"
	"io"
)

// Out is the code buffer the register cache emits into. Every encoded
// instruction is also kept in decoded form so callers can print or simulate
// what was generated without a disassembler.
type Out struct {
	buf     bytes.Buffer
	listing []Inst

	// Trace, when set, receives one line per instruction with its bytes
	Trace io.Writer
}

// NewOut creates an empty code buffer
func NewOut() *Out {
	return &Out{}
}

// Bytes returns the machine code emitted so far
func (o *Out) Bytes() []byte {
	return o.buf.Bytes()
}

// Len returns the number of code bytes emitted so far
func (o *Out) Len() int {
	return o.buf.Len()
}

// Listing returns the decoded instructions emitted so far
func (o *Out) Listing() []Inst {
	return o.listing
}

// Since returns the instructions emitted after the first n
func (o *Out) Since(n int) []Inst {
	if n >= len(o.listing) {
		return nil
	}
	return o.listing[n:]
}

// Count returns how many instructions with the given op were emitted
func (o *Out) Count(op Op) int {
	n := 0
	for _, in := range o.listing {
		if in.Op == op {
			n++
		}
	}
	return n
}

// Reset discards all emitted code
func (o *Out) Reset() {
	o.buf.Reset()
	o.listing = o.listing[:0]
}

func (o *Out) emit(in Inst, code []byte) {
	in.Offset = o.buf.Len()
	in.Size = len(code)
	o.buf.Write(code)
	o.listing = append(o.listing, in)
	if o.Trace != nil {
		fmt.Fprintf(o.Trace, "%-40s:", in.String())
		for _, b := range code {
			fmt.Fprintf(o.Trace, " %02x", b)
		}
		fmt.Fprintln(o.Trace)
	}
}

// rexFor returns the REX prefix needed for the given ModRM reg and rm/base
// fields, or 0 when none is needed.
func rexFor(w bool, reg, rm uint8) byte {
	rex := byte(0)
	if w {
		rex |= 0x08
	}
	if reg >= 8 {
		rex |= 0x04 // REX.R
	}
	if rm >= 8 {
		rex |= 0x01 // REX.B
	}
	if rex != 0 {
		rex |= 0x40
	}
	return rex
}

// encodeRR encodes [prefix] [REX] opcode ModRM(11, reg, rm) [imm]
func encodeRR(prefix byte, opcode []byte, reg, rm uint8, imm ...byte) []byte {
	code := make([]byte, 0, 6+len(imm))
	if prefix != 0 {
		code = append(code, prefix)
	}
	if rex := rexFor(false, reg, rm); rex != 0 {
		code = append(code, rex)
	}
	code = append(code, opcode...)
	code = append(code, 0xC0|(reg&7)<<3|rm&7)
	return append(code, imm...)
}

// encodeRM encodes [prefix] [REX] opcode ModRM [SIB] [disp] [imm] for a
// [base + disp] operand. RBP/R13 bases always carry a displacement and
// RSP/R12 bases need a SIB byte.
func encodeRM(prefix byte, opcode []byte, reg uint8, m Mem, imm ...byte) []byte {
	code := make([]byte, 0, 12+len(imm))
	if prefix != 0 {
		code = append(code, prefix)
	}
	base := uint8(m.Base)
	if rex := rexFor(false, reg, base); rex != 0 {
		code = append(code, rex)
	}
	code = append(code, opcode...)

	baseEnc := base & 7
	regEnc := (reg & 7) << 3
	var mod byte
	switch {
	case m.Disp == 0 && baseEnc != 5:
		mod = 0x00
	case m.Disp >= -128 && m.Disp <= 127:
		mod = 0x40
	default:
		mod = 0x80
	}
	code = append(code, mod|regEnc|baseEnc)
	if baseEnc == 4 {
		code = append(code, 0x24)
	}
	switch mod {
	case 0x40:
		code = append(code, byte(int8(m.Disp)))
	case 0x80:
		d := uint32(m.Disp)
		code = append(code, byte(d), byte(d>>8), byte(d>>16), byte(d>>24))
	}
	return append(code, imm...)
}
