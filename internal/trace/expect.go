// Completion: 100% - Trace expectations complete
package trace

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xyproto/xmmcache/internal/engine"
	"github.com/xyproto/xmmcache/internal/x86"
	"github.com/xyproto/xmmcache/internal/xmmreg"
)

// expect checks one claim about the allocator or the simulated machine:
//
//	expect mem <reg> <lane>...     guest memory after running the code so far
//	expect xmm <n> <lane>...       host register contents
//	expect mm <n> <value>
//	expect slot <reg> <n>|none     where a guest register is bound
//	expect state <reg> <state>     invalid, cached, dirty or dirty+cached
//	expect <counter> <n>           loads, stores, evictions, transfers, inuse, dirty, pinned, faults
//	expect fault exhausted|invariant   the next command must fault
func (s *Session) expect(cmd Command) error {
	what := strings.ToLower(cmd.Args[0])
	args := cmd.Args[1:]
	sub := Command{Name: cmd.Name, Args: args, Loc: cmd.Loc, cols: cmd.cols[1:]}

	switch what {
	case "fault":
		if len(args) != 1 {
			return SyntaxError("usage: expect fault exhausted|invariant", cmd.Loc)
		}
		switch strings.ToLower(args[0]) {
		case "exhausted":
			s.wantFault = xmmreg.ErrExhausted
		case "invariant":
			s.wantFault = xmmreg.ErrInvariant
		default:
			return ArgumentError(fmt.Errorf("unknown fault kind %q (supported: exhausted, invariant)", args[0]), cmd.ArgLoc(1))
		}
		return nil

	case "mem":
		if err := s.sync(); err != nil {
			return err
		}
		r, n, err := parseReg(args)
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(1))
		}
		want, err := s.lanes(sub, n, laneCount(r.Class))
		if err != nil {
			return err
		}
		off := s.layout.Offset(r.Class, r.Index, r.Ctx)
		got := make([]uint32, len(want))
		for i := range want {
			got[i] = s.m.Uint32(off + int32(4*i))
		}
		return compareLanes(fmt.Sprintf("memory of %s", regName(r)), want, got, cmd.Loc)

	case "xmm":
		if err := s.sync(); err != nil {
			return err
		}
		if len(args) < 2 {
			return SyntaxError("usage: expect xmm <n> <lane>...", cmd.Loc)
		}
		n, err := parseSlot(args[0])
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(1))
		}
		want, err := s.lanes(sub, 1, 4)
		if err != nil {
			return err
		}
		return compareLanes(fmt.Sprintf("xmm%d", n), want, s.m.XMM[n][:len(want)], cmd.Loc)

	case "mm":
		if err := s.sync(); err != nil {
			return err
		}
		if len(args) != 2 {
			return SyntaxError("usage: expect mm <n> <value>", cmd.Loc)
		}
		n, err := parseIndex(args[0], x86.NumMMX)
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(1))
		}
		want, err := parseValue(args[1])
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(2))
		}
		if got := s.m.MMX[n]; got != want {
			return ExpectError(fmt.Sprintf("mm%d is 0x%x, expected 0x%x", n, got, want), cmd.Loc)
		}
		return nil

	case "slot", "state":
		r, n, err := parseReg(args)
		if err != nil {
			return ArgumentError(err, cmd.ArgLoc(1))
		}
		if n != len(args)-1 {
			return SyntaxError(fmt.Sprintf("usage: expect %s <reg> <value>", what), cmd.Loc)
		}
		i := s.a.Find(r.Class, r.Index, r.Ctx)
		wantStr := strings.ToLower(args[n])
		if what == "slot" {
			got := "none"
			if i != xmmreg.NoSlot {
				got = strconv.Itoa(i)
			}
			if strings.TrimPrefix(wantStr, "xmm") != got {
				return ExpectError(fmt.Sprintf("%s is in slot %s, expected %s", regName(r), got, wantStr), cmd.Loc)
			}
			return nil
		}
		if i == xmmreg.NoSlot {
			return ExpectError(fmt.Sprintf("%s is not bound, expected %s", regName(r), wantStr), cmd.Loc)
		}
		got := s.a.Slot(i).State.String()
		if wantStr == "dirtycached" {
			wantStr = "dirty+cached"
		}
		if got != wantStr {
			return ExpectError(fmt.Sprintf("%s in xmm%d is %s, expected %s", regName(r), i, got, wantStr), cmd.Loc)
		}
		return nil
	}

	counter, ok := counters[what]
	if !ok {
		names := []string{"fault", "mem", "xmm", "mm", "slot", "state"}
		for name := range counters {
			names = append(names, name)
		}
		e := ArgumentError(fmt.Errorf("unknown expectation %q", cmd.Args[0]), cmd.ArgLoc(0))
		if similar := similarTo(what, names); similar != "" {
			e.Context.Suggestion = similar
		}
		return e
	}
	if len(args) != 1 {
		return SyntaxError(fmt.Sprintf("usage: expect %s <n>", what), cmd.Loc)
	}
	want, err := strconv.Atoi(args[0])
	if err != nil {
		return ArgumentError(fmt.Errorf("bad count %q", args[0]), cmd.ArgLoc(1))
	}
	if got := counter(s.a.Pressure()); got != want {
		return ExpectError(fmt.Sprintf("%s is %d, expected %d", what, got, want), cmd.Loc)
	}
	return nil
}

var counters = map[string]func(xmmreg.Stats) int{
	"loads":     func(st xmmreg.Stats) int { return st.Loads },
	"stores":    func(st xmmreg.Stats) int { return st.Stores },
	"evictions": func(st xmmreg.Stats) int { return st.Evictions },
	"transfers": func(st xmmreg.Stats) int { return st.Transfers },
	"inuse":     func(st xmmreg.Stats) int { return st.InUse },
	"dirty":     func(st xmmreg.Stats) int { return st.Dirty },
	"pinned":    func(st xmmreg.Stats) int { return st.Pinned },
	"faults":    func(st xmmreg.Stats) int { return st.Faults },
}

func compareLanes(what string, want, got []uint32, loc Location) error {
	for i := range want {
		if want[i] != got[i] {
			return ExpectError(fmt.Sprintf("%s lane %d is 0x%x, expected 0x%x", what, i, got[i], want[i]), loc)
		}
	}
	return nil
}

func regName(r regRef) string {
	return xmmreg.Key{Class: r.Class, Index: r.Index, Ctx: r.Ctx}.String()
}

func similarTo(name string, names []string) string {
	if s := engine.FindSimilar(name, names, 1); len(s) > 0 {
		return fmt.Sprintf("did you mean '%s'?", s[0])
	}
	return ""
}
