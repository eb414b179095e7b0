// Completion: 100% - Trace diagnostics complete
package trace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xyproto/xmmcache/internal/engine"
	"github.com/xyproto/xmmcache/internal/xmmreg"
)

// Level indicates the severity of a diagnostic
type Level int

const (
	LevelWarning Level = iota
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal error"
	default:
		return "unknown"
	}
}

// Category classifies what went wrong
type Category int

const (
	CategorySyntax   Category = iota // malformed trace line
	CategoryArgument                 // well-formed line with a bad operand
	CategoryFault                    // the register cache raised a fault
	CategoryExpect                   // an expect line did not hold
	CategoryInternal
)

func (c Category) String() string {
	switch c {
	case CategorySyntax:
		return "syntax"
	case CategoryArgument:
		return "argument"
	case CategoryFault:
		return "fault"
	case CategoryExpect:
		return "expect"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Location is a position in a trace file
type Location struct {
	File   string
	Line   int
	Column int
	Length int // length of the offending word
}

func (loc Location) String() string {
	if loc.File == "" {
		return fmt.Sprintf("%d:%d", loc.Line, loc.Column)
	}
	return fmt.Sprintf("%s:%d:%d", loc.File, loc.Line, loc.Column)
}

// Context is the extra text printed under a diagnostic
type Context struct {
	SourceLine string
	Suggestion string // "did you mean 'x'?"
	HelpText   string
}

// Error is one trace diagnostic
type Error struct {
	Level    Level
	Category Category
	Message  string
	Location Location
	Context  Context
	Err      error // underlying cause, for errors.Is
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Location, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Format returns the diagnostic with its source line and hints
func (e *Error) Format(useColor bool) string {
	var sb strings.Builder
	paint := func(code, s string) {
		if useColor {
			sb.WriteString(code)
		}
		sb.WriteString(s)
		if useColor {
			sb.WriteString("\033[0m")
		}
	}

	paint("\033[1;31m", e.Level.String()+":")
	sb.WriteString(" ")
	sb.WriteString(e.Message)
	sb.WriteString("\n")
	paint("\033[1;34m", "  --> "+e.Location.String())
	sb.WriteString("\n")

	if e.Context.SourceLine != "" {
		lineNum := fmt.Sprintf("%d", e.Location.Line)
		padding := strings.Repeat(" ", len(lineNum)+1)
		sb.WriteString(padding + "|\n")
		sb.WriteString(lineNum + " | " + e.Context.SourceLine + "\n")
		sb.WriteString(padding + "| ")
		if e.Location.Column > 0 {
			sb.WriteString(strings.Repeat(" ", e.Location.Column-1))
			paint("\033[1;31m", strings.Repeat("^", max(e.Location.Length, 1)))
		}
		sb.WriteString("\n")
	}

	if e.Context.Suggestion != "" {
		paint("\033[1;32m", "   help: ")
		sb.WriteString(e.Context.Suggestion + "\n")
	}
	if e.Context.HelpText != "" {
		paint("\033[1;36m", "   note: ")
		sb.WriteString(e.Context.HelpText + "\n")
	}
	return sb.String()
}

// Collector accumulates diagnostics of one replay
type Collector struct {
	errors    []*Error
	warnings  []*Error
	maxErrors int
	lines     []string
}

// NewCollector creates a collector that asks to stop after maxErrors
// errors (10 when maxErrors <= 0)
func NewCollector(maxErrors int) *Collector {
	if maxErrors <= 0 {
		maxErrors = 10
	}
	return &Collector{maxErrors: maxErrors}
}

// SetSource stores the trace text so diagnostics can quote their line
func (c *Collector) SetSource(src string) {
	c.lines = strings.Split(src, "\n")
}

func (c *Collector) sourceLine(n int) string {
	if n <= 0 || n > len(c.lines) {
		return ""
	}
	return strings.TrimRight(c.lines[n-1], "\r")
}

// Add records a diagnostic. A plain error is recorded as an internal error.
func (c *Collector) Add(err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Level: LevelError, Category: CategoryInternal, Message: err.Error(), Err: err}
	}
	if e.Context.SourceLine == "" {
		e.Context.SourceLine = c.sourceLine(e.Location.Line)
	}
	if e.Level == LevelWarning {
		c.warnings = append(c.warnings, e)
		return
	}
	c.errors = append(c.errors, e)
}

// Errors returns the recorded errors
func (c *Collector) Errors() []*Error { return c.errors }

// Warnings returns the recorded warnings
func (c *Collector) Warnings() []*Error { return c.warnings }

// HasErrors returns true if any errors were collected
func (c *Collector) HasErrors() bool { return len(c.errors) > 0 }

// ErrorCount returns the number of errors
func (c *Collector) ErrorCount() int { return len(c.errors) }

// ShouldStop returns true if the error limit was reached
func (c *Collector) ShouldStop() bool { return len(c.errors) >= c.maxErrors }

// Report formats every diagnostic followed by a count summary
func (c *Collector) Report(useColor bool) string {
	var sb strings.Builder
	all := append(append([]*Error{}, c.errors...), c.warnings...)
	for i, e := range all {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(e.Format(useColor))
	}
	if len(all) == 0 {
		return ""
	}
	sb.WriteString("\n")
	var parts []string
	if len(c.errors) > 0 {
		parts = append(parts, colorize(useColor, "\033[1;31m", fmt.Sprintf("%d error(s)", len(c.errors))))
	}
	if len(c.warnings) > 0 {
		parts = append(parts, colorize(useColor, "\033[1;33m", fmt.Sprintf("%d warning(s)", len(c.warnings))))
	}
	sb.WriteString(strings.Join(parts, ", "))
	sb.WriteString(" found\n")
	return sb.String()
}

// Clear resets the collector, keeping the source
func (c *Collector) Clear() {
	c.errors = nil
	c.warnings = nil
}

func colorize(useColor bool, code, s string) string {
	if !useColor {
		return s
	}
	return code + s + "\033[0m"
}

// Helper functions for creating common diagnostics

// SyntaxError creates an error for a malformed line
func SyntaxError(message string, loc Location) *Error {
	return &Error{Level: LevelError, Category: CategorySyntax, Message: message, Location: loc}
}

// ArgumentError creates an error for a bad operand
func ArgumentError(err error, loc Location) *Error {
	return &Error{Level: LevelError, Category: CategoryArgument, Message: err.Error(), Location: loc, Err: err}
}

// UnknownCommandError reports an unknown command with the closest known names
func UnknownCommandError(name string, loc Location) *Error {
	e := &Error{
		Level:    LevelError,
		Category: CategorySyntax,
		Message:  fmt.Sprintf("unknown command '%s'", name),
		Location: loc,
		Context:  Context{HelpText: "run with -i and type 'help' for the command list"},
	}
	if similar := engine.FindSimilar(name, commandNames(), 3); len(similar) > 0 {
		e.Context.Suggestion = fmt.Sprintf("did you mean '%s'?", strings.Join(similar, "', '"))
	}
	return e
}

// FaultError reports a fault raised by the register cache. The current
// translation unit is abandoned.
func FaultError(f *xmmreg.Fault, loc Location) *Error {
	e := &Error{
		Level:    LevelFatal,
		Category: CategoryFault,
		Message:  f.Error(),
		Location: loc,
		Err:      f,
	}
	switch {
	case errors.Is(f, xmmreg.ErrExhausted):
		e.Context.HelpText = "every XMM slot is pinned; end the instruction with 'inst' or free a temp"
	case errors.Is(f, xmmreg.ErrInvariant):
		e.Context.HelpText = "the translation unit was abandoned"
	}
	return e
}

// ExpectError reports an expectation that did not hold
func ExpectError(message string, loc Location) *Error {
	return &Error{Level: LevelError, Category: CategoryExpect, Message: message, Location: loc}
}
