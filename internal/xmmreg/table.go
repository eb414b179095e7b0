// Completion: 100% - Slot table complete
package xmmreg

import "github.com/xyproto/xmmcache/internal/x86"

// NoSlot is returned when a lookup finds nothing
const NoSlot = -1

// Table is the set of allocation records, one per physical XMM register.
// Lookups are linear scans; the table never holds more than 16 entries.
type Table struct {
	slots   []Slot
	counter uint32
	cursor  int
}

// NewTable creates a table of n free slots
func NewTable(n int) *Table {
	if n <= 0 || n > x86.NumXMM {
		panic(invariantf("table size %d out of range [1,%d]", n, x86.NumXMM))
	}
	return &Table{slots: make([]Slot, n)}
}

// Len returns the number of slots
func (t *Table) Len() int { return len(t.slots) }

// Slot returns the record of slot i
func (t *Table) Slot(i int) *Slot { return &t.slots[i] }

// Slots returns all records
func (t *Table) Slots() []Slot { return t.slots }

// Counter returns the current allocation timestamp
func (t *Table) Counter() uint32 { return t.counter }

// Cursor returns where the next free-slot scan starts
func (t *Table) Cursor() int { return t.cursor }

// Find returns the slot bound to k, or NoSlot
func (t *Table) Find(k Key) int {
	for i := range t.slots {
		if t.slots[i].Holds(k) {
			return i
		}
	}
	return NoSlot
}

// Reinit frees every slot and resets the counter and the cursor. Called
// once per translation unit.
func (t *Table) Reinit() {
	clear(t.slots)
	t.counter = 0
	t.cursor = 0
}

// Tick stamps slot i with the next counter value
func (t *Table) Tick(i int) {
	t.slots[i].Counter = t.counter
	t.counter++
}

// Rebind moves the record of slot from to slot to and frees from. The
// record in to is overwritten; callers evict it first.
func (t *Table) Rebind(from, to int) {
	if from == to {
		return
	}
	t.slots[to] = t.slots[from]
	t.slots[from] = Slot{}
}

// firstFree returns the lowest free slot, or NoSlot
func (t *Table) firstFree() int {
	for i := range t.slots {
		if !t.slots[i].InUse {
			return i
		}
	}
	return NoSlot
}

// InUse returns the number of bound slots
func (t *Table) InUse() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].InUse {
			n++
		}
	}
	return n
}
