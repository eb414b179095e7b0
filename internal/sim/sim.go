// Completion: 100% - Listing simulator complete

// Package sim executes an instruction listing recorded by x86.Out on a model
// of the host SIMD registers and the guest state block. It only knows the
// instruction forms the register cache emits.
package sim

import (
	"encoding/binary"
	"fmt"

	"github.com/xyproto/xmmcache/internal/x86"
)

// Vec is the value of an XMM register as four 32-bit lanes, x first
type Vec [4]uint32

// Machine is the simulated host state
type Machine struct {
	XMM  [x86.NumXMM]Vec
	MMX  [x86.NumMMX]uint64
	Base x86.GPR
	Mem  []byte

	Executed int
}

// New creates a machine whose base register points at a zeroed guest
// state block of size bytes
func New(base x86.GPR, size int) *Machine {
	return &Machine{Base: base, Mem: make([]byte, size)}
}

// Run executes every instruction of the listing in order
func (m *Machine) Run(listing []x86.Inst) error {
	for _, in := range listing {
		if err := m.Step(in); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) addr(op x86.Operand, align bool) (int, error) {
	if op.Mem.Base != m.Base {
		return 0, fmt.Errorf("base register %s is not the guest state base %s", op.Mem.Base, m.Base)
	}
	a := int(op.Mem.Disp)
	if a < 0 || a+op.Width > len(m.Mem) {
		return 0, fmt.Errorf("access of %d bytes at %s is outside the %d byte guest block", op.Width, op.Mem, len(m.Mem))
	}
	if align && a%16 != 0 {
		return 0, fmt.Errorf("misaligned 16-byte access at %s", op.Mem)
	}
	return a, nil
}

func (m *Machine) readVec(a int) Vec {
	var v Vec
	for i := range v {
		v[i] = binary.LittleEndian.Uint32(m.Mem[a+4*i:])
	}
	return v
}

func (m *Machine) writeLanes(a int, v Vec, n int) {
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(m.Mem[a+4*i:], v[i])
	}
}

// Step executes one instruction
func (m *Machine) Step(in x86.Inst) error {
	if err := m.step(in); err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	m.Executed++
	return nil
}

func (m *Machine) step(in x86.Inst) error {
	d, s := in.Dst, in.Src
	switch in.Op {
	case x86.OpMovaps, x86.OpMovdqa:
		switch {
		case s.IsMem():
			a, err := m.addr(s, true)
			if err != nil {
				return err
			}
			m.XMM[d.Reg] = m.readVec(a)
		case d.IsMem():
			a, err := m.addr(d, true)
			if err != nil {
				return err
			}
			m.writeLanes(a, m.XMM[s.Reg], 4)
		default:
			m.XMM[d.Reg] = m.XMM[s.Reg]
		}

	case x86.OpMovss:
		if s.IsMem() {
			a, err := m.addr(s, false)
			if err != nil {
				return err
			}
			m.XMM[d.Reg] = Vec{binary.LittleEndian.Uint32(m.Mem[a:])}
			return nil
		}
		a, err := m.addr(d, false)
		if err != nil {
			return err
		}
		m.writeLanes(a, m.XMM[s.Reg], 1)

	case x86.OpMovlps, x86.OpMovq:
		if s.IsMem() {
			a, err := m.addr(s, false)
			if err != nil {
				return err
			}
			v := &m.XMM[d.Reg]
			v[0] = binary.LittleEndian.Uint32(m.Mem[a:])
			v[1] = binary.LittleEndian.Uint32(m.Mem[a+4:])
			if in.Op == x86.OpMovq {
				v[2], v[3] = 0, 0
			}
			return nil
		}
		a, err := m.addr(d, false)
		if err != nil {
			return err
		}
		m.writeLanes(a, m.XMM[s.Reg], 2)

	case x86.OpMovhlps:
		src := m.XMM[s.Reg]
		m.XMM[d.Reg][0] = src[2]
		m.XMM[d.Reg][1] = src[3]

	case x86.OpShufps:
		dv, sv := m.XMM[d.Reg], m.XMM[s.Reg]
		imm := uint8(in.Imm)
		m.XMM[d.Reg] = Vec{dv[imm&3], dv[(imm>>2)&3], sv[(imm>>4)&3], sv[(imm>>6)&3]}

	case x86.OpMovd:
		a, err := m.addr(d, false)
		if err != nil {
			return err
		}
		m.writeLanes(a, m.XMM[s.Reg], 1)

	case x86.OpPsrad:
		n := min(uint(in.Imm), 31)
		v := &m.XMM[d.Reg]
		for i := range v {
			v[i] = uint32(int32(v[i]) >> n)
		}

	case x86.OpPxor:
		v := &m.XMM[d.Reg]
		sv := m.XMM[s.Reg]
		for i := range v {
			v[i] ^= sv[i]
		}

	case x86.OpPunpcklqdq:
		dv, sv := m.XMM[d.Reg], m.XMM[s.Reg]
		m.XMM[d.Reg] = Vec{dv[0], dv[1], sv[0], sv[1]}

	case x86.OpPunpckhqdq:
		a, err := m.addr(s, true)
		if err != nil {
			return err
		}
		dv, sv := m.XMM[d.Reg], m.readVec(a)
		m.XMM[d.Reg] = Vec{dv[2], dv[3], sv[2], sv[3]}

	case x86.OpMovq2dq:
		mm := m.MMX[s.Reg]
		m.XMM[d.Reg] = Vec{uint32(mm), uint32(mm >> 32), 0, 0}

	case x86.OpMovqMMX:
		if s.IsMem() {
			a, err := m.addr(s, false)
			if err != nil {
				return err
			}
			m.MMX[d.Reg] = binary.LittleEndian.Uint64(m.Mem[a:])
			return nil
		}
		a, err := m.addr(d, false)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(m.Mem[a:], m.MMX[s.Reg])

	case x86.OpExtractps:
		a, err := m.addr(d, false)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(m.Mem[a:], m.XMM[s.Reg][in.Imm&3])

	case x86.OpSar32:
		a, err := m.addr(d, false)
		if err != nil {
			return err
		}
		v := int32(binary.LittleEndian.Uint32(m.Mem[a:]))
		binary.LittleEndian.PutUint32(m.Mem[a:], uint32(v>>min(uint(in.Imm), 31)))

	case x86.OpMov32:
		a, err := m.addr(d, false)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(m.Mem[a:], uint32(in.Imm))

	case x86.OpEmms:

	default:
		return fmt.Errorf("unsupported instruction")
	}
	return nil
}

// Vec returns the 16 bytes of guest memory at disp as lanes
func (m *Machine) Vec(disp int32) Vec {
	return m.readVec(int(disp))
}

// SetVec writes four lanes to guest memory at disp
func (m *Machine) SetVec(disp int32, v Vec) {
	m.writeLanes(int(disp), v, 4)
}

// Uint32 reads a dword of guest memory
func (m *Machine) Uint32(disp int32) uint32 {
	return binary.LittleEndian.Uint32(m.Mem[disp:])
}

// SetUint32 writes a dword of guest memory
func (m *Machine) SetUint32(disp int32, v uint32) {
	binary.LittleEndian.PutUint32(m.Mem[disp:], v)
}

// Uint64 reads a qword of guest memory
func (m *Machine) Uint64(disp int32) uint64 {
	return binary.LittleEndian.Uint64(m.Mem[disp:])
}

// SetUint64 writes a qword of guest memory
func (m *Machine) SetUint64(disp int32, v uint64) {
	binary.LittleEndian.PutUint64(m.Mem[disp:], v)
}
