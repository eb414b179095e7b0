// Completion: 100% - Fault handling complete
package xmmreg

import (
	"errors"
	"fmt"
)

// Fault sentinels. A fault means the translator asked for something the
// cache cannot do; the current translation unit has to be abandoned.
var (
	ErrExhausted = errors.New("xmm register allocation exhausted")
	ErrInvariant = errors.New("xmm register cache invariant violated")
)

// Fault is the panic value raised by the register cache
type Fault struct {
	Kind error
	Msg  string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%v: %s", f.Kind, f.Msg)
}

func (f *Fault) Unwrap() error { return f.Kind }

func invariantf(format string, args ...any) *Fault {
	return &Fault{Kind: ErrInvariant, Msg: fmt.Sprintf(format, args...)}
}

// assertf raises an invariant fault when cond is false. It is a no-op in
// builds tagged xmmrelease.
func assertf(cond bool, format string, args ...any) {
	if assertionsEnabled && !cond {
		panic(invariantf(format, args...))
	}
}

// Recover turns a Fault panic into an error stored in *err. Other panics
// are passed on. Use as: defer xmmreg.Recover(&err)
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if f, ok := r.(*Fault); ok {
		*err = f
		return
	}
	panic(r)
}

// Run calls fn and returns the fault it raised, if any
func Run(fn func()) (err error) {
	defer Recover(&err)
	fn()
	return nil
}

// Run is like the package level Run and counts the fault in Stats.Faults.
// Translation drivers call it so exhaustion and invariant faults both show
// up in the statistics.
func (a *Allocator) Run(fn func()) error {
	err := Run(fn)
	if err != nil {
		a.stats.Faults++
	}
	return err
}
