// Package vm implements the stack-based bytecode virtual machine: its
// value stack and variable table, numeric coercions, inline number lexer,
// three-pass prescanner, and opcode dispatch loop.
package vm

import (
	"io"
	"math"
	"os"

	"github.com/google/uuid"

	"github.com/antibyte/glyphvm/pkg/format"
)

// Option configures a VM at construction time.
type Option func(*VM)

// WithOutput sets the sink that '\'' and '!' write formatted values and
// newlines to. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(v *VM) { v.out = w }
}

// WithFormat overrides how print opcodes render a value to text. Defaults
// to format.Value. Numeric formatting is an external-collaborator concern
// per spec.md §1, kept swappable rather than hardwired into the core.
func WithFormat(fn func(float64) string) Option {
	return func(v *VM) { v.format = fn }
}

// WithDiagnostics registers a callback invoked whenever Step returns an
// UndefinedOpcodeError, before the error is also returned to the caller.
// This lets a host log the diagnostic through its own logger without the
// core VM importing one (see spec.md §7; DESIGN.md).
func WithDiagnostics(fn func(error)) Option {
	return func(v *VM) { v.onDiagnostic = fn }
}

// WithBranchDebug registers a callback that fires once for each
// branch-table slot rewritten while collapsing a multi-hop
// branch-to-branch chain during prescan (spec.md §6's branch-
// optimizer debug mode). Must be supplied before New() runs the
// prescanner; setting it any other way has no effect.
func WithBranchDebug(fn BranchDebugFunc) Option {
	return func(v *VM) { v.branchDebug = fn }
}

// VM is a single instance of the bytecode virtual machine. Its program
// image, prescan tables, and literal cache are fixed at construction; its
// stack, variables, PC, and terminate flag are mutated by Step.
type VM struct {
	img  *image
	pre  *prescanResult
	lits *literalCache

	stack *valueStack
	vars  varTable

	pc        int64
	terminate bool
	steps     uint64

	out          io.Writer
	format       func(float64) string
	onDiagnostic func(error)
	branchDebug  BranchDebugFunc

	runID uuid.UUID
}

// New constructs a VM from a program image, copying the bytes and running
// the prescanner exactly once. The stack and variables start empty/zero
// and the PC starts at 0.
func New(program []byte, opts ...Option) *VM {
	v := &VM{
		out:    os.Stdout,
		format: format.Value,
		runID:  uuid.New(),
	}
	for _, opt := range opts {
		opt(v)
	}

	img := newImage(program)
	lits := newLiteralCache()
	v.img = img
	v.lits = lits
	v.pre = prescan(img, lits, v.branchDebug)
	v.stack = newValueStack()
	return v
}

// RunID is a unique identifier stamped on construction, used by the
// logger and trace packages to correlate a run's output.
func (v *VM) RunID() uuid.UUID {
	return v.runID
}

// Run steps the VM until it terminates. The terminate flag is reset at
// the top of every iteration so a stale set from a prior run can't cause
// an immediate exit.
func (v *VM) Run() error {
	for {
		v.terminate = false
		if err := v.Step(); err != nil {
			return err
		}
		if v.terminate {
			return nil
		}
	}
}

// RunLimited is like Run, but stops after at most maxSteps steps even if
// the program hasn't terminated. It returns terminated=false if the step
// budget was exhausted first. This is a host-side cooperative budgeting
// affordance; the core VM has no intrinsic step limit (spec.md §5).
func (v *VM) RunLimited(maxSteps uint64) (terminated bool, err error) {
	start := v.steps
	for v.steps-start < maxSteps {
		v.terminate = false
		if err := v.Step(); err != nil {
			return false, err
		}
		if v.terminate {
			return true, nil
		}
	}
	return false, nil
}

// Steps returns the number of instructions executed so far.
func (v *VM) Steps() uint64 {
	return v.steps
}

// PC returns the current program counter.
func (v *VM) PC() int64 {
	return v.pc
}

// SetPC sets the program counter.
func (v *VM) SetPC(pc int64) {
	v.pc = pc
}

// Terminated reports whether the terminate flag is currently set.
func (v *VM) Terminated() bool {
	return v.terminate
}

// Var returns the value of variable name (0..255).
func (v *VM) Var(name byte) float64 {
	return v.vars.Get(name)
}

// SetVar sets the value of variable name (0..255).
func (v *VM) SetVar(name byte, val float64) {
	v.vars.Set(name, val)
}

// StackView returns a read-only snapshot of the value stack, top element
// last.
func (v *VM) StackView() []float64 {
	return v.stack.View()
}

// PeekOpcode returns the whitespace-normalized byte Step would fetch
// next, without consuming it. Used by a host's trace mode to report the
// instruction about to execute (spec.md §6).
func (v *VM) PeekOpcode() byte {
	return fixWs(v.img.at(v.pc))
}

// nextByte fetches the byte at pc and advances pc, unless pc is already
// out of range, in which case it stays pinned and returns the termination
// byte forever.
func (v *VM) nextByte() byte {
	b := v.img.at(v.pc)
	if v.pc >= 0 && v.pc < v.img.len() {
		v.pc++
	}
	return b
}

// resolve turns a popped value into a destination PC for C and G. A
// negative value is the bitwise complement of a captured PC (how C
// encodes return addresses); a positive normal value is looked up in the
// global-label table; anything else resolves to a terminating jump.
func (v *VM) resolve(val float64) int64 {
	if val < 0 {
		return ^toInt64(val)
	}
	if isNormalFloat(val) {
		if pc, ok := v.pre.globalLabel[val]; ok {
			return pc
		}
	}
	return kTerminatePc
}

// isNormalFloat mirrors C's isnormal(): finite, nonzero, and not
// subnormal. Used to guard global-label lookups against NaN and
// subnormal keys, matching the resolution-time check in
// original_source/vm.cc's Resolve().
func isNormalFloat(d float64) bool {
	const minNormal = 2.2250738585072014e-308 // DBL_MIN
	if math.IsNaN(d) || math.IsInf(d, 0) || d == 0 {
		return false
	}
	return math.Abs(d) >= minNormal
}

// Step executes a single instruction: fetch, advance, normalize
// whitespace, expand '\'-escapes, and dispatch. It returns a non-nil
// error only for an undefined opcode (diagnostic, terminate still set) or
// an output-sink write failure; every other condition is tolerated by
// construction per spec.md §7.
func (v *VM) Step() error {
	v.steps++

	bc := fixWs(v.nextByte())
	opcode := int(bc)
	if bc == '\\' {
		opcode = int(v.nextByte()) + 256
	}

	return v.dispatch(opcode)
}
