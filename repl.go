// Completion: 100% - Interactive replay complete
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/xyproto/xmmcache/internal/trace"
)

const (
	prompt     = "\033[32mxmm>\033[0m "
	unitPrompt = "\033[33mxmm*>\033[0m "
)

// regItems completes the register operand of a command
func regItems() []readline.PrefixCompleterInterface {
	return []readline.PrefixCompleterInterface{
		readline.PcItem("gpr"),
		readline.PcItem("fpr"),
		readline.PcItem("fpacc"),
		readline.PcItem("vf"),
		readline.PcItem("acc"),
	}
}

func completer() *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("quit"),
	}
	for _, line := range trace.Usage() {
		name := strings.Fields(line)[0]
		switch name {
		case "alloc", "check", "live", "pin", "delete", "poke":
			items = append(items, readline.PcItem(name, regItems()...))
		case "temp":
			items = append(items, readline.PcItem(name, readline.PcItem("int"), readline.PcItem("fps")))
		case "expect":
			items = append(items, readline.PcItem(name,
				readline.PcItem("mem", regItems()...),
				readline.PcItem("slot", regItems()...),
				readline.PcItem("state", regItems()...),
				readline.PcItem("xmm"), readline.PcItem("mm"), readline.PcItem("fault"),
				readline.PcItem("loads"), readline.PcItem("stores"), readline.PcItem("evictions"),
				readline.PcItem("faults")))
		default:
			items = append(items, readline.PcItem(name))
		}
	}
	return readline.NewPrefixCompleter(items...)
}

// repl reads trace commands from the terminal and runs them one at a time
// against a single session
func repl(opts trace.Options, cfg Config, useColor bool) error {
	s, err := trace.NewSession(opts)
	if err != nil {
		return err
	}

	l, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       cfg.History,
		AutoComplete:      completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer l.Close()

	fmt.Fprintf(os.Stderr, "%s, type 'help' for commands\n", versionString)

	var lines []string
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			return err
		}

		switch strings.TrimSpace(line) {
		case "":
			continue
		case "quit", "exit":
			return s.Finish()
		case "help":
			for _, u := range trace.Usage() {
				fmt.Println("  " + u)
			}
			continue
		}

		lines = append(lines, line)
		errs := trace.NewCollector(0)
		errs.SetSource(strings.Join(lines, "\n"))

		cmd, ok, err := trace.ParseLine("<stdin>", len(lines), line)
		if err == nil && ok {
			err = s.Exec(cmd)
		}
		if err != nil {
			errs.Add(err)
			fmt.Fprint(os.Stderr, errs.Report(useColor))
		}

		if s.Allocator() != nil {
			l.SetPrompt(unitPrompt)
		} else {
			l.SetPrompt(prompt)
		}
	}
	return s.Finish()
}
