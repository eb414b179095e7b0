// Completion: 100% - Environment configuration complete
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xyproto/env/v2"

	"github.com/xyproto/xmmcache/internal/engine"
	"github.com/xyproto/xmmcache/internal/x86"
	"github.com/xyproto/xmmcache/internal/xmmreg"
)

// Config holds the settings that can come from the environment. Flags
// override every field.
type Config struct {
	Slots   int    // XMMCACHE_SLOTS, 0 means all 16
	Verbose bool   // XMMCACHE_VERBOSE
	SSE41   string // XMMCACHE_SSE41: "auto", "on" or "off"
	Color   string // XMMCACHE_COLOR: "auto", "always" or "never"
	History string // XMMCACHE_HISTORY, REPL history file
}

// loadConfig reads the XMMCACHE_* environment variables
func loadConfig() Config {
	return Config{
		Slots:   env.Int("XMMCACHE_SLOTS", 0),
		Verbose: env.Bool("XMMCACHE_VERBOSE"),
		SSE41:   strings.ToLower(env.Str("XMMCACHE_SSE41", "auto")),
		Color:   strings.ToLower(env.Str("XMMCACHE_COLOR", "auto")),
		History: env.Str("XMMCACHE_HISTORY", ".xmmcache-history.tmp"),
	}
}

// parseSlots accepts "8", "xmm8" style counts
func parseSlots(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "xmm"))
	if err != nil || n < 0 || n > x86.NumXMM {
		return 0, fmt.Errorf("invalid slot count %q (1-%d, 0 for all)", s, x86.NumXMM)
	}
	return n, nil
}

// sse41 decides whether extractps may be emitted
func (c Config) sse41(host engine.Features) (bool, error) {
	switch c.SSE41 {
	case "", "auto":
		return host.SSE41, nil
	case "on", "yes", "1", "true":
		return true, nil
	case "off", "no", "0", "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid SSE4.1 setting %q (auto, on, off)", c.SSE41)
	}
}

// useColor decides whether diagnostics are colourised. tty tells if
// stderr is a terminal.
func (c Config) useColor(tty bool) (bool, error) {
	switch c.Color {
	case "", "auto":
		return tty && !env.Has("NO_COLOR"), nil
	case "always", "on", "yes":
		return true, nil
	case "never", "off", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid color setting %q (auto, always, never)", c.Color)
	}
}

// allocatorConfig builds the register cache configuration
func (c Config) allocatorConfig(host engine.Features) (xmmreg.Config, error) {
	sse41, err := c.sse41(host)
	if err != nil {
		return xmmreg.Config{}, err
	}
	return xmmreg.Config{Slots: c.Slots, SSE41: sse41, Verbose: c.Verbose}, nil
}
