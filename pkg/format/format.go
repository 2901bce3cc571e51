// Package format provides the numeric output formatting the VM's print
// opcodes ('\'' and '!') need, kept outside the core per spec.md §1: the
// core describes only the interface it requires (a float64 -> string
// function), not a fixed rendering.
package format

import (
	"strconv"

	"github.com/dustin/go-humanize"
)

// Value renders a float64 the way the VM's print opcodes emit it: the
// shortest decimal representation that round-trips exactly, matching the
// "default floating-point format" spec.md §6 calls for.
func Value(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// StepCount renders a step count with thousands separators, used by the
// host's verbose "DONE.  N steps" trailer (spec.md §6).
func StepCount(n uint64) string {
	return humanize.Comma(int64(n))
}
