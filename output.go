package fst

// Values are plain byte sequences. The value of a key is the concatenation
// of the outputs along its transition path, followed by the residual of the
// final state it lands on. factorOutputs rewrites an automaton so that the
// shared prefixes of those values sit as close to the root as the graph
// allows, without changing the value of any key.

// lcp returns the longest common prefix of a and b. The result aliases a.
func lcp(a, b []byte) []byte {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}

// concat joins a and b. When either side is empty the other is returned
// as is, so callers must treat the result as read only.
func concat(a, b []byte) []byte {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// factorOutputs hoists, for every non root state, the longest common prefix
// of all values passing through it onto the incoming transitions. The root
// keeps whatever reaches it. Output slices may alias each other afterwards
// and are never mutated in place.
func factorOutputs(m *machine) {
	hoist := make([][]byte, len(m.trans))
	seen := make([]bool, len(m.trans))

	type frame struct {
		state int
		next  int
	}
	stack := []frame{{state: m.root}}
	seen[m.root] = true
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		ts := m.trans[f.state]
		if f.next < len(ts) {
			t := ts[f.next].Target
			f.next++
			if !seen[t] {
				seen[t] = true
				stack = append(stack, frame{state: t})
			}
			continue
		}
		s := f.state
		stack = stack[:len(stack)-1]

		var h []byte
		first := true
		for _, tr := range ts {
			v := concat(tr.Output, hoist[tr.Target])
			if first {
				h, first = v, false
			} else {
				h = lcp(h, v)
			}
		}
		if m.final[s] {
			if first {
				h, first = m.resid[s], false
			} else {
				h = lcp(h, m.resid[s])
			}
		}
		hoist[s] = h
	}

	for s := range m.trans {
		if !seen[s] {
			continue
		}
		cut := 0
		if s != m.root {
			cut = len(hoist[s])
		}
		for i := range m.trans[s] {
			tr := &m.trans[s][i]
			tr.Output = concat(tr.Output, hoist[tr.Target])[cut:]
		}
		if m.final[s] {
			m.resid[s] = m.resid[s][cut:]
		}
	}
}
