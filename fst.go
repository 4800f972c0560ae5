package fst

import (
	"fmt"
	"io"
)

// MatchKind classifies the outcome of a lookup.
type MatchKind int

const (
	// NotFound means the walk fell off the transducer before the key ran
	// out.
	NotFound MatchKind = iota

	// Found means the key is present; Output holds its value.
	Found

	// Prefix means the key ran out on a non accepting state. Longer keys
	// continue from Result.State.
	Prefix
)

func (k MatchKind) String() string {
	switch k {
	case Found:
		return "found"
	case Prefix:
		return "prefix"
	default:
		return "not found"
	}
}

// Result is the outcome of Lookup or LookupAt.
type Result struct {
	Kind MatchKind

	// Output is the value bytes emitted during this call. For Found it
	// is the full remaining value including the final residual; for
	// Prefix it is what the consumed bytes emitted, so streaming a key
	// through several LookupAt calls concatenates to the exact value.
	// May be nil when nothing was emitted.
	Output []byte

	// State addresses the state the walk stopped on. Meaningful for
	// Found and Prefix; pass it to LookupAt to resume.
	State uint32
}

// FindResult is one hit of FindAllPrefixesOf.
type FindResult struct {
	// Key is the matched prefix. It aliases the input slice.
	Key []byte

	// Output is the key's value. Always a fresh copy, nil when empty.
	Output []byte
}

// EnumerationResult is returned by an EnumFn to steer Enumerate.
type EnumerationResult = int

const (
	// Continue walks into the keys below this one.
	Continue EnumerationResult = iota

	// Skip leaves out the keys below this one.
	Skip

	// Stop ends the enumeration.
	Stop
)

// EnumFn visits one prefix. key is only valid during the call; value is a
// fresh copy, non nil only when final is true and the value is non empty.
type EnumFn = func(key []byte, value []byte, final bool) EnumerationResult

// terminal tags a slot with the finality of the state addressed there.
type terminal uint8

const (
	termNot terminal = iota
	termEmpty
	termInner
)

// outRef locates a byte run in the output blob.
type outRef struct {
	pos uint32
	n   uint32
}

// FST is a finite state transducer held in a double array: an immutable
// ordered map from byte string keys to byte string values. Build one with
// a Builder, or Encode an Automaton directly, or open a serialized one
// with Load or Read.
//
// A state is addressed by the slot its incoming edge occupies; the root
// lives at slot 0. Every method is safe for concurrent use.
type FST struct {
	check    []uint16
	base     []uint32
	term     []terminal
	outs     []outRef
	outData  []byte
	residual map[uint32]outRef

	alpha     *alphabet
	slots     uint32
	numKeys   int
	numStates int
	occupied  int

	// Set on file backed transducers, which read slot records through r
	// instead of the arrays above.
	r    io.ReaderAt
	size int64
	lay  layout
}

// seeker returns a fresh bit reader for file backed access, nil for in
// memory access. Each query uses its own so readers never share state.
func (f *FST) seeker() *bitSeeker {
	if f.r == nil {
		return nil
	}
	return newBitSeeker(f.r)
}

func (f *FST) slotCheck(q *bitSeeker, t uint32) uint16 {
	if q == nil {
		return f.check[t]
	}
	q.Seek(f.lay.slotBits + int64(t)*f.lay.recBits)
	return uint16(q.ReadBits(f.lay.checkBits))
}

func (f *FST) slotBase(q *bitSeeker, t uint32) uint32 {
	if q == nil {
		return f.base[t]
	}
	q.Seek(f.lay.slotBits + int64(t)*f.lay.recBits + f.lay.checkBits)
	return uint32(q.ReadBits(f.lay.baseBits))
}

func (f *FST) slotTerm(q *bitSeeker, t uint32) terminal {
	if q == nil {
		return f.term[t]
	}
	q.Seek(f.lay.slotBits + int64(t)*f.lay.recBits + f.lay.checkBits + f.lay.baseBits)
	return terminal(q.ReadBits(2))
}

// slotOut returns the output of the edge in slot t. In memory it is a
// view into the blob; callers never hand it out without copying.
func (f *FST) slotOut(q *bitSeeker, t uint32) []byte {
	if q == nil {
		ref := f.outs[t]
		if ref.n == 0 {
			return nil
		}
		return f.outData[ref.pos : ref.pos+ref.n]
	}
	q.Seek(f.lay.slotBits + int64(t)*f.lay.recBits + f.lay.checkBits + f.lay.baseBits + 2)
	pos := q.ReadBits(f.lay.posBits)
	n := q.ReadBits(f.lay.lenBits)
	return f.blob(uint32(pos), uint32(n))
}

// slotResidual returns the residual of the final state addressed at t,
// which must carry termInner.
func (f *FST) slotResidual(q *bitSeeker, t uint32) []byte {
	if q == nil {
		ref, ok := f.residual[t]
		if !ok || ref.n == 0 {
			return nil
		}
		return f.outData[ref.pos : ref.pos+ref.n]
	}
	lo, hi := int64(0), f.lay.numRes
	for lo < hi {
		mid := (lo + hi) / 2
		q.Seek(f.lay.resBits + mid*f.lay.resRecBits)
		addr := uint32(q.ReadBits(f.lay.baseBits))
		switch {
		case addr == t:
			pos := q.ReadBits(f.lay.posBits)
			n := q.ReadBits(f.lay.lenBits)
			return f.blob(uint32(pos), uint32(n))
		case addr < t:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return nil
}

func (f *FST) blob(pos, n uint32) []byte {
	if n == 0 {
		return nil
	}
	buf := make([]byte, n)
	if _, err := f.r.ReadAt(buf, f.lay.blobOff+int64(pos)); err != nil {
		return nil
	}
	return buf
}

// finalValue returns a copy of out plus the residual of s when s accepts.
func (f *FST) finalValue(q *bitSeeker, s uint32, out []byte) ([]byte, bool) {
	term := f.slotTerm(q, s)
	if term == termNot {
		return nil, false
	}
	var resid []byte
	if term == termInner {
		resid = f.slotResidual(q, s)
	}
	if len(out)+len(resid) == 0 {
		return nil, true
	}
	v := make([]byte, 0, len(out)+len(resid))
	return append(append(v, out...), resid...), true
}

// Lookup walks key from the root and reports how far it got.
func (f *FST) Lookup(key []byte) Result {
	return f.LookupAt(0, key)
}

// LookupAt resumes a walk from a state returned in an earlier Result,
// consuming key from there. State 0 is the root.
func (f *FST) LookupAt(state uint32, key []byte) Result {
	if state >= f.slots {
		return Result{Kind: NotFound}
	}
	q := f.seeker()
	s := state
	var out []byte
	for _, b := range key {
		code := f.alpha.code[b]
		if code == 0 {
			return Result{Kind: NotFound}
		}
		t := f.slotBase(q, s) + uint32(code)
		if t >= f.slots || f.slotCheck(q, t) != code {
			return Result{Kind: NotFound}
		}
		out = append(out, f.slotOut(q, t)...)
		s = t
	}
	switch f.slotTerm(q, s) {
	case termNot:
		return Result{Kind: Prefix, Output: out, State: s}
	case termInner:
		out = append(out, f.slotResidual(q, s)...)
	}
	return Result{Kind: Found, Output: out, State: s}
}

// Get returns the value of key.
func (f *FST) Get(key []byte) ([]byte, bool) {
	res := f.Lookup(key)
	if res.Kind != Found {
		return nil, false
	}
	return res.Output, true
}

// Contains reports whether key is present. On an in memory transducer it
// allocates nothing.
func (f *FST) Contains(key []byte) bool {
	q := f.seeker()
	s := uint32(0)
	for _, b := range key {
		code := f.alpha.code[b]
		if code == 0 {
			return false
		}
		t := f.slotBase(q, s) + uint32(code)
		if t >= f.slots || f.slotCheck(q, t) != code {
			return false
		}
		s = t
	}
	return f.slotTerm(q, s) != termNot
}

// FindAllPrefixesOf returns every key that is a prefix of input, shortest
// first, with its value.
func (f *FST) FindAllPrefixesOf(input []byte) []FindResult {
	q := f.seeker()
	var results []FindResult
	var out []byte
	s := uint32(0)
	if v, ok := f.finalValue(q, s, out); ok {
		results = append(results, FindResult{Key: input[:0], Output: v})
	}
	for i, b := range input {
		code := f.alpha.code[b]
		if code == 0 {
			break
		}
		t := f.slotBase(q, s) + uint32(code)
		if t >= f.slots || f.slotCheck(q, t) != code {
			break
		}
		out = append(out, f.slotOut(q, t)...)
		s = t
		if v, ok := f.finalValue(q, s, out); ok {
			results = append(results, FindResult{Key: input[:i+1], Output: v})
		}
	}
	return results
}

// Enumerate visits every prefix in key order, keys and non keys alike;
// fn's final argument tells them apart. Return Skip to prune below the
// current prefix, Stop to end the walk.
func (f *FST) Enumerate(fn EnumFn) {
	f.enumerate(f.seeker(), 0, nil, nil, fn)
}

func (f *FST) enumerate(q *bitSeeker, s uint32, key, out []byte, fn EnumFn) EnumerationResult {
	value, final := f.finalValue(q, s, out)
	result := fn(key, value, final)
	if result != Continue {
		return result
	}
	b := f.slotBase(q, s)
	for code := uint16(1); int(code) <= f.alpha.size(); code++ {
		t := b + uint32(code)
		if t >= f.slots || f.slotCheck(q, t) != code {
			continue
		}
		key = append(key, f.alpha.syms[code-1])
		result = f.enumerate(q, t, key, append(out, f.slotOut(q, t)...), fn)
		key = key[:len(key)-1]
		if result == Stop {
			break
		}
	}
	return result
}

// NumKeys returns how many keys the transducer holds.
func (f *FST) NumKeys() int { return f.numKeys }

// NumStates returns how many automaton states were encoded.
func (f *FST) NumStates() int { return f.numStates }

// NumSlots returns the length of the double array.
func (f *FST) NumSlots() int { return int(f.slots) }

// Density returns the fraction of slots in use.
func (f *FST) Density() float64 {
	if f.slots == 0 {
		return 0
	}
	return float64(f.occupied) / float64(f.slots)
}

// Alphabet returns the distinct bytes the keys use, ascending.
func (f *FST) Alphabet() []byte {
	return append([]byte(nil), f.alpha.syms...)
}

// Dump writes a human readable slot listing for debugging.
func (f *FST) Dump(w io.Writer) {
	q := f.seeker()
	fmt.Fprintf(w, "fst: %d keys, %d states, %d/%d slots, %d symbols\n",
		f.numKeys, f.numStates, f.occupied, f.slots, f.alpha.size())
	for t := uint32(0); t < f.slots; t++ {
		code := f.slotCheck(q, t)
		if code == 0 && t != 0 {
			continue
		}
		if t == 0 {
			fmt.Fprintf(w, "%6d: root base %d", t, f.slotBase(q, t))
		} else {
			fmt.Fprintf(w, "%6d: label %q base %d", t, f.alpha.syms[code-1], f.slotBase(q, t))
			if out := f.slotOut(q, t); len(out) > 0 {
				fmt.Fprintf(w, " out %q", out)
			}
		}
		switch f.slotTerm(q, t) {
		case termEmpty:
			fmt.Fprint(w, " final")
		case termInner:
			fmt.Fprintf(w, " final %q", f.slotResidual(q, t))
		}
		fmt.Fprintln(w)
	}
}

// Close releases the file behind a mapped transducer. It is a no op for
// in memory ones.
func (f *FST) Close() error {
	if c, ok := f.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
