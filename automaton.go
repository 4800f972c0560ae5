package fst

import "fmt"

// Transition is a labeled, output-bearing edge of an automaton. Transitions
// out of a state must be sorted by Label, with no repeats.
type Transition struct {
	// Label is the input byte consumed by the transition.
	Label byte

	// Output is emitted when the transition is taken. May be empty.
	Output []byte

	// Target is the state the transition leads to.
	Target int
}

// Automaton is a deterministic acyclic transducer presented for encoding.
// States are identified by integers in [0, NumStates). The Builder produces
// one, but any implementation works, for example an automaton assembled
// directly from a precomputed state table.
//
// Encode reads the automaton exactly once and never writes to it.
type Automaton interface {
	// Initial returns the start state.
	Initial() int

	// NumStates returns the number of states.
	NumStates() int

	// IsFinal reports whether s accepts.
	IsFinal(s int) bool

	// Residual returns the output emitted when a key ends at s. It is
	// only consulted for final states.
	Residual(s int) []byte

	// Transitions returns the outgoing edges of s in label order.
	Transitions(s int) []Transition
}

// machine is a private, validated copy of an Automaton. Encode works on the
// copy so later mutation of the source cannot tear an encode in progress.
type machine struct {
	root  int
	final []bool
	resid [][]byte
	trans [][]Transition
}

func (m *machine) Initial() int                   { return m.root }
func (m *machine) NumStates() int                 { return len(m.trans) }
func (m *machine) IsFinal(s int) bool             { return m.final[s] }
func (m *machine) Residual(s int) []byte          { return m.resid[s] }
func (m *machine) Transitions(s int) []Transition { return m.trans[s] }

// snapshot copies a into a machine, checking label order and target ranges
// along the way.
func snapshot(a Automaton) (*machine, error) {
	n := a.NumStates()
	root := a.Initial()
	if n <= 0 || root < 0 || root >= n {
		return nil, fmt.Errorf("%w: initial state %d of %d", ErrBadTransition, root, n)
	}
	m := &machine{
		root:  root,
		final: make([]bool, n),
		resid: make([][]byte, n),
		trans: make([][]Transition, n),
	}
	for s := 0; s < n; s++ {
		m.final[s] = a.IsFinal(s)
		if m.final[s] {
			m.resid[s] = a.Residual(s)
		}
		if ts := a.Transitions(s); len(ts) > 0 {
			m.trans[s] = append([]Transition(nil), ts...)
		}
		for i, tr := range m.trans[s] {
			if tr.Target < 0 || tr.Target >= n {
				return nil, fmt.Errorf("%w: state %d, label 0x%02x, target %d", ErrBadTransition, s, tr.Label, tr.Target)
			}
			if i > 0 && m.trans[s][i-1].Label >= tr.Label {
				return nil, fmt.Errorf("%w: state %d, label 0x%02x", ErrNotDeterministic, s, tr.Label)
			}
		}
	}
	return m, nil
}

// analyze walks the machine from the root, rejecting cycles. It returns
// which states are reachable; the rest take no part in the encoding.
func (m *machine) analyze() ([]bool, error) {
	const (
		white = iota
		grey
		black
	)
	color := make([]uint8, len(m.trans))

	type frame struct {
		state int
		next  int
	}
	stack := []frame{{state: m.root}}
	color[m.root] = grey
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		ts := m.trans[f.state]
		if f.next < len(ts) {
			t := ts[f.next].Target
			f.next++
			switch color[t] {
			case grey:
				return nil, fmt.Errorf("%w: state %d reaches state %d again", ErrCyclicAutomaton, f.state, t)
			case white:
				color[t] = grey
				stack = append(stack, frame{state: t})
			}
			continue
		}
		color[f.state] = black
		stack = stack[:len(stack)-1]
	}

	reach := make([]bool, len(m.trans))
	for s, c := range color {
		reach[s] = c == black
	}
	return reach, nil
}

// countKeys returns the number of accepted keys: the number of distinct
// paths from the root to a final state.
func (m *machine) countKeys() int {
	memo := make([]int, len(m.trans))
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
		n := 0
		if m.final[f.state] {
			n = 1
		}
		for _, tr := range ts {
			n += memo[tr.Target]
		}
		memo[f.state] = n
		stack = stack[:len(stack)-1]
	}
	return memo[m.root]
}
