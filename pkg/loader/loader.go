// Package loader turns an input source into the byte image pkg/vm.New
// expects, and optionally verifies a signed bundle around it before
// handing the program bytes over.
package loader

import (
	"bufio"
	"io"

	"github.com/antibyte/glyphvm/pkg/logger"
)

// ReadProgram reads lines from r and concatenates them with a single
// space byte between (and after) each one, preserving inter-line
// whitespace the way a plain line-oriented read would, per spec.md §6:
// "lines read from an input source are concatenated with a single space
// byte between them."
func ReadProgram(r io.Reader) ([]byte, error) {
	var prog []byte
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		prog = append(prog, scanner.Bytes()...)
		prog = append(prog, ' ')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	logger.Debug(logger.AreaLoader, "read program: %d bytes", len(prog))
	return prog, nil
}
