// Completion: 100% - Trace replay complete
package trace

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xyproto/xmmcache/internal/guest"
	"github.com/xyproto/xmmcache/internal/liveness"
	"github.com/xyproto/xmmcache/internal/mmxreg"
	"github.com/xyproto/xmmcache/internal/sim"
	"github.com/xyproto/xmmcache/internal/x86"
	"github.com/xyproto/xmmcache/internal/xmmreg"
)

// Options configures a replay
type Options struct {
	Config xmmreg.Config
	Out    io.Writer // command output (slot numbers, dumps); nil discards it
}

// UnitResult summarises one translation unit of a trace
type UnitResult struct {
	Name    string
	Line    int
	Insts   int
	Code    []byte
	Listing []x86.Inst
	Stats   xmmreg.Stats
	Err     error // the fault that abandoned the unit
}

// Session replays commands. Every unit gets a fresh allocator, MMX cache
// and code buffer; guest memory of the simulated machine lives on across
// units.
type Session struct {
	opts   Options
	layout *guest.Layout
	m      *sim.Machine

	out    *x86.Out
	consts *guest.ConstRegs
	mmx    *mmxreg.Cache
	a      *xmmreg.Allocator
	inst   *liveness.Inst
	ran    int

	open   bool // a unit is in progress
	failed bool // the unit faulted, commands are skipped until its end
	unit   UnitResult
	units  []UnitResult

	wantFault error // set by "expect fault", checked by the next command
}

// NewSession creates a session. The allocator configuration is validated
// up front.
func NewSession(opts Options) (*Session, error) {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	layout := guest.DefaultLayout()
	if _, err := xmmreg.New(opts.Config, x86.NewOut(), layout, nil, nil); err != nil {
		return nil, err
	}
	return &Session{
		opts:   opts,
		layout: layout,
		m:      sim.New(layout.Base, int(layout.Size)),
	}, nil
}

// Machine returns the simulated machine
func (s *Session) Machine() *sim.Machine { return s.m }

// Layout returns the guest memory map
func (s *Session) Layout() *guest.Layout { return s.layout }

// Units returns the finished units
func (s *Session) Units() []UnitResult { return s.units }

// Allocator returns the allocator of the open unit, or nil
func (s *Session) Allocator() *xmmreg.Allocator {
	if !s.open {
		return nil
	}
	return s.a
}

func (s *Session) printf(format string, args ...any) {
	fmt.Fprintf(s.opts.Out, format, args...)
}

func (s *Session) beginUnit(name string, line int) {
	s.out = x86.NewOut()
	s.consts = &guest.ConstRegs{}
	s.mmx = mmxreg.New(s.out, s.layout)
	// the configuration was validated by NewSession
	s.a, _ = xmmreg.New(s.opts.Config, s.out, s.layout, s.consts, s.mmx)
	s.newInst()
	s.ran = 0
	s.open = true
	s.failed = false
	s.wantFault = nil
	s.unit = UnitResult{Name: name, Line: line}
}

func (s *Session) newInst() {
	s.inst = &liveness.Inst{}
	s.inst.Clear()
	s.a.SetInst(s.inst)
}

// flushUnit is the destructive flush at the end of a unit. It may fault.
func (s *Session) flushUnit() error {
	s.a.FreeAll()
	s.mmx.FreeAll()
	return s.sync()
}

func (s *Session) closeUnit() {
	s.unit.Code = append([]byte(nil), s.out.Bytes()...)
	s.unit.Listing = append([]x86.Inst(nil), s.out.Listing()...)
	s.unit.Stats = s.a.Pressure()
	s.units = append(s.units, s.unit)
	s.open = false
}

// machineOnly reports whether cmd only touches the simulated machine and
// so needs no open unit
func machineOnly(cmd Command) bool {
	switch cmd.Name {
	case "poke", "set":
		return true
	case "expect":
		switch strings.ToLower(cmd.Args[0]) {
		case "mem", "xmm", "mm":
			return true
		}
	}
	return false
}

// sync runs the code emitted since the last sync on the machine
func (s *Session) sync() error {
	if s.out == nil {
		return nil
	}
	pending := s.out.Since(s.ran)
	s.ran = len(s.out.Listing())
	if err := s.m.Run(pending); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	return nil
}

// Exec runs one command. A fault from the register cache abandons the
// current unit and is returned as a *Error.
func (s *Session) Exec(cmd Command) error {
	if cmd.Name == "unit" && s.open {
		if err := s.Exec(Command{Name: "end", Loc: cmd.Loc}); err != nil {
			return err
		}
	}
	if cmd.Name == "end" && !s.open {
		return nil
	}
	if !s.open && machineOnly(cmd) {
		return s.exec(cmd)
	}
	if !s.open {
		name := ""
		if cmd.Name == "unit" && len(cmd.Args) > 0 {
			name = cmd.Args[0]
		}
		s.beginUnit(name, cmd.Loc.Line)
		if cmd.Name == "unit" {
			return nil
		}
	}
	if s.failed && cmd.Name != "end" {
		return nil
	}

	var want error
	if cmd.Name != "expect" {
		want = s.wantFault
		s.wantFault = nil
	}

	var err error
	fault := s.a.Run(func() { err = s.exec(cmd) })
	if fault != nil {
		var f *xmmreg.Fault
		errors.As(fault, &f)
		s.failed = true
		s.unit.Err = f
		if cmd.Name == "end" {
			s.closeUnit()
		}
		if want != nil && errors.Is(f, want) {
			s.printf("fault (expected): %s\n", f.Msg)
			return nil
		}
		return FaultError(f, cmd.Loc)
	}
	if want != nil {
		return ExpectError(fmt.Sprintf("expected a fault (%v) from '%s', none was raised", want, cmd), cmd.Loc)
	}
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return e
		}
		return &Error{Level: LevelError, Category: CategoryInternal, Message: err.Error(), Location: cmd.Loc, Err: err}
	}
	return nil
}

// Finish closes a unit left open at the end of the input
func (s *Session) Finish() error {
	if !s.open {
		return nil
	}
	return s.Exec(Command{Name: "end"})
}

// Replay runs cmds, collecting diagnostics in errs
func (s *Session) Replay(cmds []Command, errs *Collector) {
	for _, cmd := range cmds {
		if err := s.Exec(cmd); err != nil {
			errs.Add(err)
			if errs.ShouldStop() {
				return
			}
		}
	}
	if err := s.Finish(); err != nil {
		errs.Add(err)
	}
}

// Run parses and replays a whole trace. The session is nil when the trace
// did not parse.
func Run(file, src string, opts Options) (*Session, *Collector) {
	cmds, errs := Parse(file, src)
	if errs.HasErrors() {
		return nil, errs
	}
	s, err := NewSession(opts)
	if err != nil {
		errs.Add(err)
		return nil, errs
	}
	s.Replay(cmds, errs)
	return s, errs
}

func (s *Session) exec(cmd Command) error {
	args := cmd.Args
	switch cmd.Name {
	case "end":
		if !s.failed {
			if err := s.flushUnit(); err != nil {
				s.closeUnit()
				return err
			}
		}
		s.closeUnit()
		return nil

	case "inst":
		s.a.ClearNeeded()
		s.mmx.ClearNeeded()
		s.newInst()
		s.unit.Insts++
		return nil

	case "live":
		r, n, err := parseReg(args)
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(0))
		}
		if n >= len(args) {
			return SyntaxError("missing liveness flags", cmd.Loc)
		}
		f, err := parseLiveFlags(args[n])
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(n))
		}
		switch r.Class {
		case guest.ClassGPR:
			s.inst.Regs[r.Index] = f
		case guest.ClassFPR:
			s.inst.FPURegs[r.Index] = f
		case guest.ClassFPACC:
			s.inst.FPURegs[guest.NumFPR] = f
		default:
			return ArgumentError(fmt.Errorf("no liveness is tracked for %s", r.Class), cmd.ArgLoc(0))
		}
		return nil

	case "alloc", "check":
		r, n, err := parseReg(args)
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(0))
		}
		if n >= len(args) {
			return SyntaxError("missing mode", cmd.Loc)
		}
		mode, err := xmmreg.ParseMode(strings.ToLower(args[n]))
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(n))
		}
		if cmd.Name == "check" {
			if i, ok := s.a.Check(r.Class, r.Index, r.Ctx, mode); ok {
				s.printf("xmm%d\n", i)
			} else {
				s.printf("miss\n")
			}
			return nil
		}
		explicit, err := s.explicitSlot(cmd, n+1)
		if err != nil {
			return err
		}
		s.printf("xmm%d\n", s.a.Alloc(r.Class, r.Index, r.Ctx, explicit, mode))
		return nil

	case "temp":
		kind, err := xmmreg.ParseDataKind(strings.ToLower(args[0]))
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(0))
		}
		explicit, err := s.explicitSlot(cmd, 1)
		if err != nil {
			return err
		}
		s.printf("xmm%d\n", s.a.AllocTemp(kind, explicit))
		return nil

	case "pin":
		r, _, err := parseReg(args)
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(0))
		}
		s.a.Pin(r.Class, r.Index, r.Ctx)
		return nil

	case "free":
		i, err := s.slotArg(cmd, 0)
		if err != nil {
			return err
		}
		s.a.Free(i)
		return nil

	case "delete":
		r, n, err := parseReg(args)
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(0))
		}
		if n >= len(args) {
			return SyntaxError("missing flush policy", cmd.Loc)
		}
		p, err := xmmreg.ParseFlushPolicy(strings.ToLower(args[n]))
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(n))
		}
		s.a.Delete(r.Class, r.Index, r.Ctx, p)
		return nil

	case "flush":
		s.a.FlushAll()
		return nil

	case "freeall":
		s.a.FreeAll()
		s.mmx.FreeAll()
		return nil

	case "signext":
		return s.signext(cmd)

	case "const":
		gpr, err := parseIndex(args[0], 32)
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(0))
		}
		v, err := parseValue(args[1])
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(1))
		}
		if gpr == 0 {
			return ArgumentError(fmt.Errorf("r0 is always zero"), cmd.ArgLoc(0))
		}
		s.consts.Set(gpr, v)
		return nil

	case "mmx":
		gpr, err := parseIndex(args[0], 32)
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(0))
		}
		mode, err := xmmreg.ParseMode(strings.ToLower(args[1]))
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(1))
		}
		s.printf("%s\n", s.mmx.Alloc(gpr, mode))
		return nil

	case "poke":
		return s.poke(cmd)

	case "set":
		return s.set(cmd)

	case "expect":
		return s.expect(cmd)

	case "dump":
		s.a.Dump(s.opts.Out)
		s.mmx.Dump(s.opts.Out)
		return nil

	case "list":
		for _, in := range s.out.Listing() {
			s.printf("  %04x  %s\n", in.Offset, in)
		}
		return nil

	case "stats":
		label := s.unit.Name
		if label == "" {
			label = fmt.Sprintf("unit at line %d", s.unit.Line)
		}
		s.a.ReportPressure(s.opts.Out, label)
		return nil
	}
	return SyntaxError(fmt.Sprintf("'%s' is not allowed here", cmd.Name), cmd.Loc)
}

// explicitSlot parses an optional "@N" argument at index i
func (s *Session) explicitSlot(cmd Command, i int) (int, error) {
	if i >= len(cmd.Args) {
		return xmmreg.NoSlot, nil
	}
	arg := cmd.Args[i]
	if !strings.HasPrefix(arg, "@") {
		return 0, SyntaxError(fmt.Sprintf("unexpected '%s' (an explicit slot is written @N)", arg), cmd.ArgLoc(i))
	}
	slot, err := parseSlot(arg[1:])
	if err != nil {
		return 0, ArgumentError(err, cmd.ArgLoc(i))
	}
	if slot >= s.a.Table().Len() {
		return 0, ArgumentError(fmt.Errorf("slot %d out of range (%d slots)", slot, s.a.Table().Len()), cmd.ArgLoc(i))
	}
	return slot, nil
}

func (s *Session) slotArg(cmd Command, i int) (int, error) {
	slot, err := parseSlot(cmd.Args[i])
	if err != nil {
		return 0, ArgumentError(err, cmd.ArgLoc(i))
	}
	if slot >= s.a.Table().Len() {
		return 0, ArgumentError(fmt.Errorf("slot %d out of range (%d slots)", slot, s.a.Table().Len()), cmd.ArgLoc(i))
	}
	return slot, nil
}

func (s *Session) signext(cmd Command) error {
	from, err := s.slotArg(cmd, 0)
	if err != nil {
		return err
	}
	r, n, err := parseReg(cmd.Args[1:])
	if err != nil {
		return ArgumentError(err, cmd.ArgLoc(1))
	}
	if r.Class != guest.ClassGPR {
		return ArgumentError(fmt.Errorf("sign extension stores to a GPR"), cmd.ArgLoc(1))
	}
	destroy := false
	if rest := cmd.Args[1+n:]; len(rest) > 0 {
		if rest[0] != "destroy" {
			return SyntaxError(fmt.Sprintf("unexpected '%s' (only 'destroy' may follow)", rest[0]), cmd.ArgLoc(1+n))
		}
		destroy = true
	}
	if !s.a.Slot(from).InUse {
		return ArgumentError(fmt.Errorf("xmm%d is not bound", from), cmd.ArgLoc(0))
	}
	if i := s.a.SignExtendToMem(s.a.Address(guest.ClassGPR, r.Index, 0), from, destroy); i == xmmreg.NoSlot {
		s.printf("destroyed\n")
	} else {
		s.printf("xmm%d\n", i)
	}
	return nil
}

func (s *Session) lanes(cmd Command, from, limit int) ([]uint32, error) {
	vals := cmd.Args[from:]
	if len(vals) == 0 || len(vals) > limit {
		return nil, SyntaxError(fmt.Sprintf("expected 1 to %d values", limit), cmd.Loc)
	}
	out := make([]uint32, len(vals))
	for i, a := range vals {
		v, err := parseValue(a)
		if err != nil || v > 0xFFFFFFFF && v < 0xFFFFFFFF80000000 {
			return nil, ArgumentError(fmt.Errorf("bad 32-bit lane value %q", a), cmd.ArgLoc(from+i))
		}
		out[i] = uint32(v)
	}
	return out, nil
}

func laneCount(c guest.Class) int {
	if c == guest.ClassFPR || c == guest.ClassFPACC {
		return 1
	}
	return 4
}

func (s *Session) poke(cmd Command) error {
	if err := s.sync(); err != nil {
		return err
	}
	r, n, err := parseReg(cmd.Args)
	if err != nil {
		return ArgumentError(err, cmd.ArgLoc(0))
	}
	vals, err := s.lanes(cmd, n, laneCount(r.Class))
	if err != nil {
		return err
	}
	off := s.layout.Offset(r.Class, r.Index, r.Ctx)
	for i, v := range vals {
		s.m.SetUint32(off+int32(4*i), v)
	}
	return nil
}

func (s *Session) set(cmd Command) error {
	if err := s.sync(); err != nil {
		return err
	}
	n, err := parseIndex(cmd.Args[1], 16)
	if err != nil {
		return ArgumentError(err, cmd.ArgLoc(1))
	}
	switch strings.ToLower(cmd.Args[0]) {
	case "xmm":
		vals, err := s.lanes(cmd, 2, 4)
		if err != nil {
			return err
		}
		copy(s.m.XMM[n][:], vals)
	case "mm":
		if n >= x86.NumMMX {
			return ArgumentError(fmt.Errorf("mm%d does not exist", n), cmd.ArgLoc(1))
		}
		v, err := parseValue(cmd.Args[2])
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(2))
		}
		s.m.MMX[n] = v
	default:
		return ArgumentError(fmt.Errorf("can only set xmm or mm registers"), cmd.ArgLoc(0))
	}
	return nil
}
