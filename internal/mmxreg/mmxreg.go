// Completion: 100% - MMX cache complete

// Package mmxreg is the cache of guest GPRs in the eight MMX registers. An
// MMX register holds the low 64 bits of one guest GPR. The XMM cache takes
// values over from here through the Lookup/Evict handshake.
package mmxreg

import (
	"fmt"
	"io"

	"github.com/xyproto/xmmcache/internal/guest"
	"github.com/xyproto/xmmcache/internal/x86"
	"github.com/xyproto/xmmcache/internal/xmmreg"
)

// Emitter is the part of the code buffer the MMX cache writes to
type Emitter interface {
	MovqLoadMMX(dst x86.MMX, src x86.Mem)
	MovqStoreMMX(dst x86.Mem, src x86.MMX)
	Emms()
}

// Slot is the allocation record of one MMX register
type Slot struct {
	InUse   bool
	GPR     int
	Dirty   bool
	Needed  bool
	Counter uint32
}

// Cache maps guest GPRs to MMX registers
type Cache struct {
	slots   [x86.NumMMX]Slot
	out     Emitter
	layout  *guest.Layout
	counter uint32
	used    bool // an MMX register was touched since the last emms
}

// New creates an empty MMX cache
func New(out Emitter, layout *guest.Layout) *Cache {
	if layout == nil {
		layout = guest.DefaultLayout()
	}
	return &Cache{out: out, layout: layout}
}

// Slot returns the record of mm<i>
func (c *Cache) Slot(i int) *Slot { return &c.slots[i] }

func (c *Cache) find(gpr int) int {
	for i := range c.slots {
		if c.slots[i].InUse && c.slots[i].GPR == gpr {
			return i
		}
	}
	return -1
}

func (c *Cache) addr(gpr int) x86.Mem {
	return c.layout.Addr(guest.ClassGPR, gpr, 0)
}

// Alloc binds the low half of gpr to an MMX register and pins it. Only
// xmmreg.Read and xmmreg.Write are meaningful in mode.
func (c *Cache) Alloc(gpr int, mode xmmreg.Mode) x86.MMX {
	i := c.find(gpr)
	if i < 0 {
		i = c.acquire()
		c.slots[i] = Slot{InUse: true, GPR: gpr}
		if mode&xmmreg.Read != 0 {
			c.out.MovqLoadMMX(x86.MMX(i), c.addr(gpr))
		}
	}
	s := &c.slots[i]
	if mode&xmmreg.Write != 0 {
		s.Dirty = true
	}
	s.Needed = true
	s.Counter = c.counter
	c.counter++
	c.used = true
	return x86.MMX(i)
}

func (c *Cache) acquire() int {
	best := -1
	for i := range c.slots {
		s := &c.slots[i]
		if !s.InUse {
			return i
		}
		if s.Needed {
			continue
		}
		if best < 0 || s.Counter < c.slots[best].Counter {
			best = i
		}
	}
	if best < 0 {
		panic(&xmmreg.Fault{Kind: xmmreg.ErrExhausted, Msg: "all MMX registers are pinned"})
	}
	c.free(best)
	return best
}

func (c *Cache) free(i int) {
	s := &c.slots[i]
	if s.InUse && s.Dirty {
		c.out.MovqStoreMMX(c.addr(s.GPR), x86.MMX(i))
	}
	*s = Slot{}
}

// Lookup reports whether gpr is cached and whether the copy is dirty
func (c *Cache) Lookup(gpr int) (x86.MMX, bool, bool) {
	i := c.find(gpr)
	if i < 0 {
		return 0, false, false
	}
	return x86.MMX(i), c.slots[i].Dirty, true
}

// Evict removes gpr from the cache according to policy
func (c *Cache) Evict(gpr int, policy xmmreg.FlushPolicy) {
	i := c.find(gpr)
	if i < 0 {
		return
	}
	switch policy {
	case xmmreg.FlushFree:
		c.free(i)
	case xmmreg.FlushKeep:
		if c.slots[i].Dirty {
			c.out.MovqStoreMMX(c.addr(gpr), x86.MMX(i))
			c.slots[i].Dirty = false
		}
	case xmmreg.FlushDrop:
		c.slots[i] = Slot{}
	}
}

// ClearNeeded unpins every MMX register
func (c *Cache) ClearNeeded() {
	for i := range c.slots {
		c.slots[i].Needed = false
	}
}

// FreeAll writes back and frees every register, then leaves MMX state
// with emms if MMX registers were used
func (c *Cache) FreeAll() {
	for i := range c.slots {
		c.free(i)
	}
	if c.used {
		c.out.Emms()
		c.used = false
	}
}

// InUse returns the number of bound MMX registers
func (c *Cache) InUse() int {
	n := 0
	for _, s := range c.slots {
		if s.InUse {
			n++
		}
	}
	return n
}

// Dump prints the MMX table
func (c *Cache) Dump(w io.Writer) {
	for i, s := range c.slots {
		if !s.InUse {
			continue
		}
		state := "clean"
		if s.Dirty {
			state = "dirty"
		}
		fmt.Fprintf(w, "  mm%d   r%-8d %s\n", i, s.GPR, state)
	}
}

var _ xmmreg.AltFile = (*Cache)(nil)
