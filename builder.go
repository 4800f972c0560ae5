package fst

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Builder assembles a minimal transducer incrementally from keys inserted
// in ascending byte order. Equal states are merged as soon as a key makes
// them immutable, so memory stays proportional to the minimal automaton
// plus one pending key, never to the input.
//
// A Builder is for a single goroutine. The transducers it produces are
// immutable and safe to share.
type Builder struct {
	states   []buildState
	path     []int
	registry map[string]int
	lastKey  []byte
	numKeys  int
	finished bool
	min      *machine
}

// buildState is a state under construction. Arc targets refer to builder
// state indexes until Automaton renumbers the reachable survivors.
type buildState struct {
	final    bool
	residual []byte
	arcs     []Transition
}

// NewBuilder returns an empty Builder. State 0 is the root.
func NewBuilder() *Builder {
	return &Builder{
		states:   []buildState{{}},
		registry: make(map[string]int),
	}
}

// Insert adds a key with its value. Keys must arrive in strictly
// increasing byte order; value may be empty and is copied as needed, but
// must not be mutated by the caller afterwards.
func (b *Builder) Insert(key, value []byte) error {
	if b.finished {
		return ErrBuilderFinished
	}
	if b.numKeys > 0 {
		switch c := bytes.Compare(key, b.lastKey); {
		case c == 0:
			return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
		case c < 0:
			return fmt.Errorf("%w: %q after %q", ErrOutOfOrderKey, key, b.lastKey)
		}
	}

	prefix := len(lcp(key, b.lastKey))
	b.freeze(prefix)

	// Walk the shared prefix, leaving on each arc only what it has in
	// common with the remaining value. Whatever an arc loses is pushed
	// down past its target, which is still on the editable path.
	rest := value
	s := 0
	for i := 0; i < prefix; i++ {
		arcs := b.states[s].arcs
		arc := &arcs[len(arcs)-1]
		p := lcp(arc.Output, rest)
		if len(p) < len(arc.Output) {
			displaced := arc.Output[len(p):]
			arc.Output = p
			b.pushDown(arc.Target, displaced)
		}
		rest = rest[len(p):]
		s = arc.Target
	}

	if len(key) == prefix {
		// Only the very first key can end inside the path, and only
		// when it is empty.
		b.states[s].final = true
		b.states[s].residual = rest
	} else {
		for i := prefix; i < len(key); i++ {
			t := b.newState()
			var out []byte
			if i == prefix {
				out = rest
			}
			b.states[s].arcs = append(b.states[s].arcs, Transition{Label: key[i], Output: out, Target: t})
			b.path = append(b.path, t)
			s = t
		}
		b.states[s].final = true
	}

	b.lastKey = append(b.lastKey[:0], key...)
	b.numKeys++
	return nil
}

// NumKeys returns the number of keys inserted so far.
func (b *Builder) NumKeys() int { return b.numKeys }

// Automaton seals the Builder and returns the minimal transducer. Further
// Inserts fail with ErrBuilderFinished.
func (b *Builder) Automaton() Automaton {
	b.seal()
	return b.min
}

// Finish seals the Builder and encodes the result.
func (b *Builder) Finish(opts ...Option) (*FST, error) {
	b.seal()
	return Encode(b.min, opts...)
}

func (b *Builder) newState() int {
	b.states = append(b.states, buildState{})
	return len(b.states) - 1
}

// pushDown prepends displaced output to every arc leaving s, and to its
// residual when s accepts. The values below s are unchanged.
func (b *Builder) pushDown(s int, displaced []byte) {
	st := &b.states[s]
	for i := range st.arcs {
		st.arcs[i].Output = concat(displaced, st.arcs[i].Output)
	}
	if st.final {
		st.residual = concat(displaced, st.residual)
	}
}

// freeze makes the tail of the previous key's path immutable, deepest
// state first. Each frozen state is replaced by its registry twin when an
// equal state already exists.
func (b *Builder) freeze(downTo int) {
	for i := len(b.path) - 1; i >= downTo; i-- {
		child := b.path[i]
		parent := 0
		if i > 0 {
			parent = b.path[i-1]
		}
		name := b.fingerprint(child)
		if twin, ok := b.registry[name]; ok {
			arcs := b.states[parent].arcs
			arcs[len(arcs)-1].Target = twin
		} else {
			b.registry[name] = child
		}
	}
	b.path = b.path[:downTo]
}

// fingerprint serializes everything that decides state equality: finality,
// residual, and the full arc list. Length prefixes keep it unambiguous for
// arbitrary byte content.
func (b *Builder) fingerprint(s int) string {
	st := &b.states[s]
	buf := make([]byte, 0, 16+16*len(st.arcs))
	if st.final {
		buf = append(buf, 1)
		buf = binary.AppendUvarint(buf, uint64(len(st.residual)))
		buf = append(buf, st.residual...)
	} else {
		buf = append(buf, 0)
	}
	for _, a := range st.arcs {
		buf = append(buf, a.Label)
		buf = binary.AppendUvarint(buf, uint64(a.Target))
		buf = binary.AppendUvarint(buf, uint64(len(a.Output)))
		buf = append(buf, a.Output...)
	}
	return string(buf)
}

func (b *Builder) seal() {
	if b.finished {
		return
	}
	b.finished = true
	b.freeze(0)
	b.min = b.compact()
	b.states = nil
	b.registry = nil
	b.path = nil
	b.lastKey = nil
}

// compact drops the states merged away by freezing and renumbers the
// survivors densely, in first-visit order from the root.
func (b *Builder) compact() *machine {
	remap := make([]int, len(b.states))
	for i := range remap {
		remap[i] = -1
	}
	order := make([]int, 0, len(b.states))
	remap[0] = 0
	order = append(order, 0)
	stack := []int{0}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, a := range b.states[s].arcs {
			if remap[a.Target] < 0 {
				remap[a.Target] = len(order)
				order = append(order, a.Target)
				stack = append(stack, a.Target)
			}
		}
	}

	m := &machine{
		final: make([]bool, len(order)),
		resid: make([][]byte, len(order)),
		trans: make([][]Transition, len(order)),
	}
	for id, old := range order {
		st := &b.states[old]
		m.final[id] = st.final
		m.resid[id] = st.residual
		if len(st.arcs) == 0 {
			continue
		}
		arcs := make([]Transition, len(st.arcs))
		for i, a := range st.arcs {
			arcs[i] = Transition{Label: a.Label, Output: a.Output, Target: remap[a.Target]}
		}
		m.trans[id] = arcs
	}
	return m
}
