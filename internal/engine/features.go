// Completion: 100% - Host feature detection complete
package engine

import (
	"strings"

	"golang.org/x/sys/cpu"
)

// Features lists the SSE extensions the register cache can use
type Features struct {
	SSE2  bool
	SSE41 bool
}

// DetectFeatures reads the SSE extensions of the host CPU. On hosts that are
// not x86 every field is false.
func DetectFeatures() Features {
	return Features{
		SSE2:  cpu.X86.HasSSE2,
		SSE41: cpu.X86.HasSSE41,
	}
}

func (f Features) String() string {
	var names []string
	if f.SSE2 {
		names = append(names, "sse2")
	}
	if f.SSE41 {
		names = append(names, "sse4.1")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, " ")
}
