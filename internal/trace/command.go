// Completion: 100% - Trace parser complete

// Package trace replays allocation traces against the XMM register cache.
// A trace is a line-oriented script: every line is one command that binds,
// pins, frees or inspects registers, the way a translator would while
// walking a block of guest code. Comments start with '#'.
package trace

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xyproto/xmmcache/internal/guest"
	"github.com/xyproto/xmmcache/internal/liveness"
)

// Command is one parsed trace line
type Command struct {
	Name string
	Args []string
	Loc  Location // position of the command name
	cols []int    // column of each argument
}

// ArgLoc returns the location of argument i, or of the command when i is
// out of range
func (c Command) ArgLoc(i int) Location {
	if i < 0 || i >= len(c.cols) {
		return c.Loc
	}
	return Location{File: c.Loc.File, Line: c.Loc.Line, Column: c.cols[i], Length: len(c.Args[i])}
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

type commandInfo struct {
	min, max int // argument count, max -1 for unbounded
	usage    string
}

var commands = map[string]commandInfo{
	"unit":    {0, 1, "unit [name]"},
	"inst":    {0, 0, "inst"},
	"live":    {2, 4, "live <reg> <flags>"},
	"alloc":   {2, 5, "alloc <reg> <mode> [@slot]"},
	"check":   {2, 4, "check <reg> <mode>"},
	"temp":    {1, 2, "temp int|fps [@slot]"},
	"pin":     {1, 3, "pin <reg>"},
	"free":    {1, 1, "free <slot>"},
	"delete":  {2, 4, "delete <reg> free|keep|drop"},
	"flush":   {0, 0, "flush"},
	"freeall": {0, 0, "freeall"},
	"signext": {3, 5, "signext <slot> gpr <n> [destroy]"},
	"const":   {2, 2, "const <gpr> <value>"},
	"mmx":     {2, 2, "mmx <gpr> <mode>"},
	"poke":    {2, 7, "poke <reg> <value>..."},
	"set":     {3, 6, "set xmm|mm <n> <value>..."},
	"expect":  {1, 7, "expect <what> <value>..."},
	"dump":    {0, 0, "dump"},
	"list":    {0, 0, "list"},
	"stats":   {0, 0, "stats"},
	"end":     {0, 0, "end"},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Usage returns the usage lines of every command, sorted by name
func Usage() []string {
	var lines []string
	for _, name := range commandNames() {
		lines = append(lines, commands[name].usage)
	}
	return lines
}

// ParseLine parses one line. ok is false for blank and comment lines.
func ParseLine(file string, lineNo int, line string) (cmd Command, ok bool, err error) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	var words []string
	var cols []int
	for i := 0; i < len(line); {
		if line[i] == ' ' || line[i] == '\t' || line[i] == '\r' {
			i++
			continue
		}
		j := i
		for j < len(line) && line[j] != ' ' && line[j] != '\t' && line[j] != '\r' {
			j++
		}
		words = append(words, line[i:j])
		cols = append(cols, i+1)
		i = j
	}
	if len(words) == 0 {
		return Command{}, false, nil
	}

	name := strings.ToLower(words[0])
	loc := Location{File: file, Line: lineNo, Column: cols[0], Length: len(words[0])}
	info, known := commands[name]
	if !known {
		return Command{}, false, UnknownCommandError(words[0], loc)
	}
	cmd = Command{Name: name, Args: words[1:], Loc: loc, cols: cols[1:]}
	if n := len(cmd.Args); n < info.min || (info.max >= 0 && n > info.max) {
		return Command{}, false, SyntaxError(fmt.Sprintf("wrong number of arguments to %s (usage: %s)", name, info.usage), loc)
	}
	return cmd, true, nil
}

// Parse parses a whole trace. Every bad line is reported; parsing goes on
// after an error until the collector asks to stop.
func Parse(file, src string) ([]Command, *Collector) {
	errs := NewCollector(0)
	errs.SetSource(src)
	var cmds []Command
	for i, line := range strings.Split(src, "\n") {
		cmd, ok, err := ParseLine(file, i+1, line)
		if err != nil {
			errs.Add(err)
			if errs.ShouldStop() {
				break
			}
			continue
		}
		if ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds, errs
}

// regRef names one guest register in a trace
type regRef struct {
	Class guest.Class
	Index int
	Ctx   int
}

// parseReg reads a register reference from the front of args and returns
// how many words it used:
//
//	gpr <n>|hi|lo   fpr <n>   fpacc   vf <ctx> <n>   acc <ctx>
func parseReg(args []string) (regRef, int, error) {
	if len(args) == 0 {
		return regRef{}, 0, fmt.Errorf("missing register")
	}
	c, err := guest.ParseClass(strings.ToLower(args[0]))
	if err != nil || c == guest.ClassTemp {
		return regRef{}, 0, fmt.Errorf("unknown register class: %s (supported: gpr, fpr, fpacc, vf, acc)", args[0])
	}
	r := regRef{Class: c}
	need := map[guest.Class]int{guest.ClassGPR: 1, guest.ClassFPR: 1, guest.ClassFPACC: 0, guest.ClassVF: 2, guest.ClassACC: 1}[c]
	if len(args) < 1+need {
		return regRef{}, 0, fmt.Errorf("%s needs %d operand(s)", c, need)
	}
	switch c {
	case guest.ClassGPR:
		switch strings.ToLower(args[1]) {
		case "hi":
			r.Index = guest.GPRHi
		case "lo":
			r.Index = guest.GPRLo
		default:
			r.Index, err = parseIndex(args[1], 32)
		}
	case guest.ClassFPR:
		r.Index, err = parseIndex(args[1], guest.NumFPR)
	case guest.ClassVF:
		if r.Ctx, err = parseIndex(args[1], guest.NumCtx); err == nil {
			r.Index, err = parseIndex(args[2], guest.NumVF)
		}
	case guest.ClassACC:
		r.Ctx, err = parseIndex(args[1], guest.NumCtx)
	}
	if err != nil {
		return regRef{}, 0, err
	}
	return r, 1 + need, nil
}

func parseIndex(s string, n int) (int, error) {
	v, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(s), "r"))
	if err != nil || v < 0 || v >= n {
		return 0, fmt.Errorf("register index %q out of range [0,%d)", s, n)
	}
	return v, nil
}

func parseSlot(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(s), "xmm"))
	if err != nil || v < 0 || v >= 16 {
		return 0, fmt.Errorf("bad slot %q (xmm0-xmm15)", s)
	}
	return v, nil
}

func parseValue(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 0, 64)
	if err != nil {
		if iv, ierr := strconv.ParseInt(s, 0, 64); ierr == nil {
			return uint64(iv), nil
		}
		return 0, fmt.Errorf("bad value %q", s)
	}
	return v, nil
}

var liveFlags = map[string]liveness.Flag{
	"live0":   liveness.Live0,
	"live1":   liveness.Live1,
	"live2":   liveness.Live2,
	"lastuse": liveness.LastUse,
	"mmx":     liveness.MMX,
	"xmm":     liveness.XMM,
	"used":    liveness.Used,
}

func parseLiveFlags(s string) (liveness.Flag, error) {
	var f liveness.Flag
	for _, word := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == '|' || r == ',' }) {
		if word == "none" {
			continue
		}
		flag, ok := liveFlags[word]
		if !ok {
			return 0, fmt.Errorf("unknown liveness flag %q (supported: live0, live1, live2, lastuse, mmx, xmm, used)", word)
		}
		f |= flag
	}
	return f, nil
}
