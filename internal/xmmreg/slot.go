// Completion: 100% - Slot model complete
package xmmreg

import (
	"fmt"

	"github.com/xyproto/xmmcache/internal/guest"
)

// Mode is what a caller asks for when binding or checking a register
type Mode uint8

const (
	Read      Mode = 1 << iota // value must be valid in the register
	Write                      // register will be modified, memory becomes stale
	ReadHalf                   // only the low 64 bits must be valid (Check only)
	PartialXY                  // only lanes x,y are written
	PartialZ                   // lane z is written as well; use PartialXYZ

	PartialXYZ = PartialXY | PartialZ
)

func (m Mode) String() string {
	s := ""
	add := func(flag Mode, name string) {
		if m&flag == 0 {
			return
		}
		if s != "" {
			s += "|"
		}
		s += name
	}
	add(Read, "read")
	add(Write, "write")
	add(ReadHalf, "half")
	if m&PartialXYZ == PartialXYZ {
		add(PartialXYZ, "xyz")
	} else {
		add(PartialXY, "xy")
		add(PartialZ, "z")
	}
	if s == "" {
		return "none"
	}
	return s
}

// ParseMode parses a mode written as flags joined by '|' or ','
func ParseMode(s string) (Mode, error) {
	var m Mode
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != '|' && s[i] != ',' {
			continue
		}
		switch s[start:i] {
		case "read", "r":
			m |= Read
		case "write", "w":
			m |= Write
		case "rw":
			m |= Read | Write
		case "half":
			m |= ReadHalf
		case "xy":
			m |= PartialXY
		case "xyz":
			m |= PartialXYZ
		case "none", "":
		default:
			return 0, fmt.Errorf("unknown mode flag %q in %q", s[start:i], s)
		}
		start = i + 1
	}
	return m, nil
}

// writeShape returns the lanes a write request covers. Only the vector
// unit classes have lanes; everything else is written whole.
func writeShape(c guest.Class, m Mode) Partial {
	if !c.Vector() {
		return Full
	}
	switch {
	case m&PartialZ != 0:
		return LowXYZ
	case m&PartialXY != 0:
		return LowXY
	}
	return Full
}

// State is the validity of a bound register relative to guest memory
type State uint8

const (
	Invalid     State = iota // bound, contents undefined
	Cached                   // contents equal guest memory
	Dirty                    // modified, memory is stale, only Partial lanes are meaningful
	DirtyCached              // modified and readable without a reload
)

func (s State) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case Cached:
		return "cached"
	case Dirty:
		return "dirty"
	case DirtyCached:
		return "dirty+cached"
	}
	return "?"
}

// IsDirty reports whether a writeback is owed
func (s State) IsDirty() bool { return s == Dirty || s == DirtyCached }

// IsValid reports whether the register can be read without a load
func (s State) IsValid() bool { return s == Cached || s == DirtyCached }

// Partial is the number of low lanes that are authoritative on writeback.
// Full is the zero value.
type Partial uint8

const (
	Full   Partial = 0
	LowXY  Partial = 2
	LowXYZ Partial = 3
)

func (p Partial) String() string {
	switch p {
	case Full:
		return "xyzw"
	case LowXY:
		return "xy"
	case LowXYZ:
		return "xyz"
	}
	return "?"
}

// widen returns the shape covering the lanes of both p and q
func (p Partial) widen(q Partial) Partial {
	if p == Full || q == Full {
		return Full
	}
	return max(p, q)
}

// DataKind selects the move family used for a register
type DataKind uint8

const (
	Integer DataKind = iota
	FloatPacked
)

func (k DataKind) String() string {
	if k == Integer {
		return "int"
	}
	return "fps"
}

// ParseDataKind parses "int" or "fps"
func ParseDataKind(s string) (DataKind, error) {
	switch s {
	case "int", "integer":
		return Integer, nil
	case "fps", "float":
		return FloatPacked, nil
	}
	return 0, fmt.Errorf("unknown data kind %q (supported: int, fps)", s)
}

// FlushPolicy selects what the Delete family does with a dirty register
type FlushPolicy uint8

const (
	FlushFree FlushPolicy = iota // write back if dirty, then unbind
	FlushKeep                    // write back if dirty, stay bound and valid
	FlushDrop                    // unbind without writing back
)

func (f FlushPolicy) String() string {
	switch f {
	case FlushFree:
		return "free"
	case FlushKeep:
		return "keep"
	case FlushDrop:
		return "drop"
	}
	return "?"
}

// ParseFlushPolicy parses a policy name or its numeric form
func ParseFlushPolicy(s string) (FlushPolicy, error) {
	switch s {
	case "free", "0":
		return FlushFree, nil
	case "keep", "1":
		return FlushKeep, nil
	case "drop", "2":
		return FlushDrop, nil
	}
	return 0, fmt.Errorf("unknown flush policy %q (supported: free, keep, drop)", s)
}

// Key identifies a guest entity. Index is 0 for accumulators, Ctx is 0 for
// everything outside the vector units.
type Key struct {
	Class guest.Class
	Index int
	Ctx   int
}

// keyFor names a guest register. Index is ignored for single-register
// classes and ctx for classes outside the vector unit.
func keyFor(c guest.Class, index, ctx int) Key {
	if c.Single() {
		index = 0
	}
	if !c.Vector() {
		ctx = 0
	}
	return Key{Class: c, Index: index, Ctx: ctx}
}

func (k Key) String() string {
	switch k.Class {
	case guest.ClassVF:
		return fmt.Sprintf("vu%d.vf%02d", k.Ctx, k.Index)
	case guest.ClassACC:
		return fmt.Sprintf("vu%d.acc", k.Ctx)
	case guest.ClassFPACC:
		return "fpacc"
	case guest.ClassFPR:
		return fmt.Sprintf("f%d", k.Index)
	case guest.ClassGPR:
		switch k.Index {
		case guest.GPRHi:
			return "hi"
		case guest.GPRLo:
			return "lo"
		}
		return fmt.Sprintf("r%d", k.Index)
	}
	return "temp"
}

// Slot is the allocation record of one physical XMM register
type Slot struct {
	InUse   bool
	Class   guest.Class
	Index   int
	Ctx     int
	State   State
	Partial Partial
	Needed  bool
	Counter uint32
	Kind    DataKind
}

// Key returns the guest identity bound to the slot
func (s *Slot) Key() Key {
	return Key{Class: s.Class, Index: s.Index, Ctx: s.Ctx}
}

// Holds reports whether the slot is bound to k
func (s *Slot) Holds(k Key) bool {
	return s.InUse && s.Class != guest.ClassTemp && s.Class == k.Class && s.Index == k.Index && s.Ctx == k.Ctx
}

// markRead records that the full register now mirrors valid data
func (s *Slot) markRead() {
	switch s.State {
	case Invalid:
		s.State = Cached
	case Dirty:
		s.State = DirtyCached
	}
}

// markWrite records a write of the lanes described by p
func (s *Slot) markWrite(p Partial) {
	switch s.State {
	case Invalid:
		s.State = Dirty
		s.Partial = p
	case Cached:
		// all lanes were valid before the write
		s.State = DirtyCached
		s.Partial = Full
	case Dirty, DirtyCached:
		s.Partial = s.Partial.widen(p)
	}
}

func (s *Slot) String() string {
	if !s.InUse {
		return "free"
	}
	str := fmt.Sprintf("%-10s %-12s %-4s %s", s.Key(), s.State, s.Partial, s.Kind)
	if s.Needed {
		str += " needed"
	}
	return str
}
