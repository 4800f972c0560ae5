package fst

import "fmt"

// alphabet maps the bytes an automaton actually uses onto dense codes
// 1..K, assigned in ascending byte order. Code 0 is reserved: in the check
// array it marks a slot that is vacant or holds a state's base marker, so
// a probe on an unused byte can never produce a false hit.
type alphabet struct {
	code [256]uint16
	syms []byte
}

// buildAlphabet collects the labels of all reachable transitions. It fails
// with ErrAlphabetOverflow when they exceed stride distinct bytes.
func buildAlphabet(m *machine, reach []bool, stride int) (*alphabet, error) {
	var used [256]bool
	for s, ts := range m.trans {
		if !reach[s] {
			continue
		}
		for _, tr := range ts {
			used[tr.Label] = true
		}
	}

	a := &alphabet{}
	for b := 0; b < 256; b++ {
		if used[b] {
			a.syms = append(a.syms, byte(b))
		}
	}
	if len(a.syms) > stride {
		return nil, fmt.Errorf("%w: %d symbols with stride %d", ErrAlphabetOverflow, len(a.syms), stride)
	}
	for i, b := range a.syms {
		a.code[b] = uint16(i + 1)
	}
	return a, nil
}

// restoreAlphabet rebuilds the code table from a serialized symbol list.
func restoreAlphabet(syms []byte) (*alphabet, error) {
	if len(syms) > 256 {
		return nil, fmt.Errorf("%w: %d alphabet symbols", ErrCorrupt, len(syms))
	}
	a := &alphabet{syms: syms}
	for i, b := range syms {
		if i > 0 && syms[i-1] >= b {
			return nil, fmt.Errorf("%w: alphabet symbols out of order", ErrCorrupt)
		}
		a.code[b] = uint16(i + 1)
	}
	return a, nil
}

// size returns K, the number of distinct symbols and the largest code.
func (a *alphabet) size() int { return len(a.syms) }
