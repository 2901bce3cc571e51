package vm

// prescanResult holds the immutable tables the prescanner produces. Both
// are indexed/keyed directly into the program image and never reallocated
// after prescan completes.
type prescanResult struct {
	// branchTarget has length image.len()+1, indexed by the PC immediately
	// after fetching an opcode. A slot holds either the PC to jump to, or
	// kTerminatePc (no target; treat as a terminating jump).
	branchTarget []int64
	// globalLabel maps an @-defined numeric key to the PC just past its
	// definition.
	globalLabel map[float64]int64
}

// chainable is the set of opcodes the branch-to-branch collapse pass
// chases through, excluding 'X' (handled separately since it always
// collapses straight to kTerminatePc rather than chasing further).
func chainable(b byte) bool {
	switch b {
	case 'L', 'F', 'B', '@', ':', ' ', ';':
		return true
	default:
		return false
	}
}

// BranchDebugFunc receives one call per branch-table slot rewritten while
// collapsing a multi-hop branch chain during prescan, when non-nil. This is the hook spec.md §6's "first argument
// starting with 'b'" CLI mode drives (see pkg/trace.BranchDebugPrinter);
// the core VM never formats or writes this output itself.
type BranchDebugFunc func(from, to int64)

// prescan runs the three-pass static analysis once, at VM construction.
// It resolves local and global labels, predecodes numeric literals into
// lits, resolves conditional branch targets, and collapses chains of
// unconditional branches so that every dynamic jump costs a single table
// lookup regardless of static distance.
func prescan(img *image, lits *literalCache, debug BranchDebugFunc) *prescanResult {
	res := &prescanResult{
		branchTarget: make([]int64, img.len()+1),
		globalLabel:  make(map[float64]int64),
	}
	for i := range res.branchTarget {
		res.branchTarget[i] = kTerminatePc
	}

	prescanForward(img, lits, res)
	prescanReverse(img, res)
	prescanCollapse(img, res, debug)

	return res
}

// prescanForward is Pass 1. It walks the image left to right, resolving
// backward local branches (the label precedes the branch, so a single
// left-to-right scan sees the label first) and recording global-label
// definitions and literal values.
func prescanForward(img *image, lits *literalCache, res *prescanResult) {
	var recentLocal [256]int64
	for i := range recentLocal {
		recentLocal[i] = kTerminatePc
	}

	for loc := int64(0); loc != img.len(); {
		bc := fixWs(img.at(loc))
		loc++

		switch {
		case bc == 'L':
			recentLocal[img.at(loc)] = loc + 1

		case bc == 'B':
			res.branchTarget[loc] = recentLocal[img.at(loc)]

		case bc == '@':
			val, newLoc := img.lexNumber(lits, loc)
			res.globalLabel[val] = newLoc
			res.branchTarget[loc] = newLoc
			loc = newLoc

		case bc == '.' || (bc >= '0' && bc <= '9'):
			_, newLoc := img.lexNumber(lits, loc-1)
			loc = newLoc
		}
	}
}

// thenElse tracks the innermost still-open conditional during the reverse
// pass: afterThen is where '?' jumps to skip the then-part (the first byte
// of the else-part once a ':' has been seen, otherwise the first
// non-whitespace byte after the ';'), and afterElse is where ':' jumps at
// the end of the then-part (the first non-whitespace byte after the ';').
type thenElse struct {
	afterThen int64
	afterElse int64
}

// prescanReverse is Pass 2. It walks the image right to left, resolving
// forward local branches (the label is later in the image, so scanning
// backward sees it first) and the unconditional/conditional branch forms
// L F : ' ' ;  and ?. The '@' and 'B' targets come from Pass 1.
func prescanReverse(img *image, res *prescanResult) {
	var recentLocal [256]int64
	for i := range recentLocal {
		recentLocal[i] = kTerminatePc
	}

	stack := []thenElse{{afterThen: kTerminatePc, afterElse: kTerminatePc}}
	prevbyte := terminateByte
	lastNonWs, lnw1, lnw2 := kTerminatePc, kTerminatePc, kTerminatePc

	for loc := img.len(); loc > 0; {
		lloc := loc
		loc--
		currbyte := img.at(loc)
		bc := fixWs(currbyte)

		if bc != ' ' && bc != ';' {
			lnw2 = lnw1
			lnw1 = lastNonWs
			lastNonWs = loc
		}

		switch bc {
		case 'L':
			res.branchTarget[lloc] = lnw2
			recentLocal[prevbyte] = loc + 2

		case 'F':
			res.branchTarget[lloc] = recentLocal[prevbyte]

		case ';':
			res.branchTarget[lloc] = lastNonWs
			stack = append(stack, thenElse{afterThen: lastNonWs, afterElse: lastNonWs})

		case ':':
			top := &stack[len(stack)-1]
			res.branchTarget[lloc] = top.afterElse
			top.afterThen = lnw1

		case '?':
			top := stack[len(stack)-1]
			res.branchTarget[lloc] = top.afterThen
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}

		case ' ':
			res.branchTarget[lloc] = lastNonWs
		}

		prevbyte = currbyte // no whitespace remap, in case of dodgy labels
	}
}

// prescanCollapse is Pass 3. For every position in the image, it follows
// the chain of unconditional branches starting at branchTarget[loc+1]
// until it reaches a non-chainable opcode or a terminator, then rewrites
// every hop along the way to point straight at that final destination.
// 'X' always collapses to kTerminatePc rather than being chased through,
// since it terminates unconditionally regardless of what follows it.
func prescanCollapse(img *image, res *prescanResult, debug BranchDebugFunc) {
	var froms []int64

	for loc := int64(0); loc != img.len(); loc++ {
		fromLoc := loc + 1
		tgtLoc := res.branchTarget[fromLoc]

		froms = froms[:0]
		for tgtLoc != kTerminatePc {
			targetByte := fixWs(img.at(tgtLoc))
			froms = append(froms, fromLoc)

			if targetByte == 'X' {
				tgtLoc = kTerminatePc
				break
			}
			if !chainable(targetByte) {
				break
			}
			fromLoc = tgtLoc + 1
			tgtLoc = res.branchTarget[fromLoc]
		}

		for _, f := range froms {
			if debug != nil && len(froms) > 1 {
				debug(f, tgtLoc)
			}
			res.branchTarget[f] = tgtLoc
		}
	}

	for label, target := range res.globalLabel {
		if chainable(fixWs(img.at(target))) {
			res.globalLabel[label] = res.branchTarget[target+1]
		}
	}
}
