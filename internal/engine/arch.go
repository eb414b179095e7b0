// Completion: 100% - Platform module complete
package engine

import (
	"fmt"
	"runtime"
	"strings"
)

// ArchX86_64 is the only architecture with the XMM register file
const ArchX86_64 = "x86_64"

// x86Names are the spellings accepted for x86-64
var x86Names = map[string]bool{"x86_64": true, "amd64": true, "x86-64": true, "x64": true}

// Platform is the target of the emitted code. The OS only names the
// platform: the cache emits the same SSE code everywhere.
type Platform struct {
	Arch string
	OS   string
}

// String returns a string like "x86_64-linux"
func (p Platform) String() string {
	return p.Arch + "-" + p.OS
}

// FullString returns a string like "x86_64 on linux"
func (p Platform) FullString() string {
	return fmt.Sprintf("%s on %s", p.Arch, p.OS)
}

// HasXMM reports whether the platform has the SSE register file the
// register cache allocates from
func (p Platform) HasXMM() bool {
	return p.Arch == ArchX86_64
}

// CheckTarget returns an error unless code for the platform can be
// generated by the XMM register cache
func (p Platform) CheckTarget() error {
	if !p.HasXMM() {
		return fmt.Errorf("%s has no XMM registers (only x86_64 is supported)", p.FullString())
	}
	return nil
}

// canonicalArch maps the x86-64 spellings to ArchX86_64 and lowercases
// anything else
func canonicalArch(s string) string {
	s = strings.ToLower(s)
	if x86Names[s] {
		return ArchX86_64
	}
	return s
}

// HostPlatform returns the platform the program runs on
func HostPlatform() Platform {
	return Platform{Arch: canonicalArch(runtime.GOARCH), OS: runtime.GOOS}
}

// ParsePlatform parses "arch" or "arch-os"; the OS defaults to the host's.
// macos is accepted for darwin.
func ParsePlatform(s string) (Platform, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Platform{}, fmt.Errorf("empty target")
	}
	p := HostPlatform()
	archStr, osStr, hasOS := strings.Cut(s, "-")
	// x86-64 contains a dash of its own
	if s == "x86-64" || strings.HasPrefix(s, "x86-64-") {
		archStr = "x86-64"
		osStr = strings.TrimPrefix(strings.TrimPrefix(s, "x86-64"), "-")
		hasOS = osStr != ""
	}
	p.Arch = canonicalArch(archStr)
	if hasOS {
		if osStr == "" || strings.Contains(osStr, "-") {
			return Platform{}, fmt.Errorf("invalid target %q (expected ARCH or ARCH-OS)", s)
		}
		if osStr == "macos" {
			osStr = "darwin"
		}
		p.OS = osStr
	}
	return p, nil
}
