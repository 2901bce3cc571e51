// Package trace implements the host-side observers spec.md §6 describes
// as external to the core VM: per-step tracing and branch-optimizer
// debug printing, plus a websocket server that can broadcast the same
// frames to a remote watcher.
package trace

import (
	"fmt"
	"io"

	"github.com/antibyte/glyphvm/pkg/vm"
)

// StepObserver prints one line per instruction, ahead of execution:
// "PC=<pc> '<byte>'" followed by up to five top stack values,
// space-separated, matching spec.md §6's trace mode.
type StepObserver struct {
	out   io.Writer
	depth int
}

// NewStepObserver returns a StepObserver writing to out, showing up to
// depth top-of-stack values per line (spec.md §6 default is five).
func NewStepObserver(out io.Writer, depth int) *StepObserver {
	if depth <= 0 {
		depth = 5
	}
	return &StepObserver{out: out, depth: depth}
}

// Before is called immediately before v.Step(); it reports the
// instruction about to run and the current stack top.
func (o *StepObserver) Before(v *vm.VM) {
	fmt.Fprintf(o.out, "PC=%d '%c'", v.PC(), o.displayByte(v.PeekOpcode()))

	stack := v.StackView()
	n := o.depth
	if n > len(stack) {
		n = len(stack)
	}
	for i := 0; i < n; i++ {
		fmt.Fprintf(o.out, " %v", stack[len(stack)-1-i])
	}
	fmt.Fprintln(o.out)
}

// displayByte substitutes a printable placeholder for bytes that would
// otherwise break a single trace line.
func (o *StepObserver) displayByte(b byte) byte {
	if b == '\n' || b == '\r' || b == '\t' {
		return ' '
	}
	return b
}

// BranchDebugPrinter renders one line per branch-table slot rewritten
// while collapsing a multi-hop branch chain during prescan, the "first
// argument starting with 'b'"
// debug mode spec.md §6 describes.
type BranchDebugPrinter struct {
	out io.Writer
}

// NewBranchDebugPrinter returns a BranchDebugPrinter writing to out.
func NewBranchDebugPrinter(out io.Writer) *BranchDebugPrinter {
	return &BranchDebugPrinter{out: out}
}

// Func returns the vm.BranchDebugFunc to pass to vm.WithBranchDebug.
func (p *BranchDebugPrinter) Func() vm.BranchDebugFunc {
	return func(from, to int64) {
		fmt.Fprintf(p.out, "branch collapse: %d -> %d\n", from, to)
	}
}
