package fst

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

type encodeOptions struct {
	blockSize  int
	maxSlots   int
	scanWindow int
	stride     int
	log        *zap.Logger
}

func defaultEncodeOptions() encodeOptions {
	return encodeOptions{
		blockSize:  256,
		maxSlots:   1 << 30,
		scanWindow: 512,
		stride:     256,
		log:        zap.NewNop(),
	}
}

func (o encodeOptions) validate() error {
	if o.blockSize < 1 {
		return fmt.Errorf("fst: block size %d out of range", o.blockSize)
	}
	if o.maxSlots < 1 || int64(o.maxSlots) > math.MaxUint32 {
		return fmt.Errorf("fst: slot limit %d out of range", o.maxSlots)
	}
	if o.scanWindow < 1 {
		return fmt.Errorf("fst: scan window %d out of range", o.scanWindow)
	}
	if o.stride < 1 || o.stride > 256 {
		return fmt.Errorf("fst: stride %d out of range", o.stride)
	}
	return nil
}

// Option adjusts how Encode lays out the double array.
type Option func(*encodeOptions)

// WithBlockSize sets how many slots the arrays grow by at a time.
func WithBlockSize(n int) Option {
	return func(o *encodeOptions) { o.blockSize = n }
}

// WithMaxSlots caps the size of the double array. Encode fails with
// ErrAddressSpaceExhausted instead of growing past the cap.
func WithMaxSlots(n int) Option {
	return func(o *encodeOptions) { o.maxSlots = n }
}

// WithScanWindow bounds how many vacancies a placement examines before it
// settles for relocating lighter states or growing the array. Small
// windows encode faster and pack worse.
func WithScanWindow(n int) Option {
	return func(o *encodeOptions) { o.scanWindow = n }
}

// WithStride caps the number of distinct label bytes. Encode fails with
// ErrAlphabetOverflow when the automaton uses more.
func WithStride(n int) Option {
	return func(o *encodeOptions) { o.stride = n }
}

// WithLogger directs encoding diagnostics to log. The default discards
// them.
func WithLogger(log *zap.Logger) Option {
	return func(o *encodeOptions) {
		if log == nil {
			log = zap.NewNop()
		}
		o.log = log
	}
}

// Encode lays a into a double array and returns the result as an
// immutable FST. The automaton must be deterministic and acyclic; a is
// read once and left untouched.
func Encode(a Automaton, opts ...Option) (*FST, error) {
	o := defaultEncodeOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	m, err := snapshot(a)
	if err != nil {
		return nil, err
	}
	reach, err := m.analyze()
	if err != nil {
		return nil, err
	}
	alpha, err := buildAlphabet(m, reach, o.stride)
	if err != nil {
		return nil, err
	}
	factorOutputs(m)

	e := &encoder{o: o, m: m, alpha: alpha}
	return e.run()
}

// encoder settles machine states into the double array one at a time. A
// state's address is the slot its incoming edges point at; the slot at a
// state's base is claimed as a marker so no two states share a base, which
// is what makes a bare label comparison a full ownership check.
type encoder struct {
	o     encodeOptions
	m     *machine
	alpha *alphabet

	check []uint16
	base  []uint32
	term  []terminal
	outs  []outRef
	free  *freeList

	outData   []byte
	residual  map[uint32]outRef
	residRefs map[int]outRef

	// baseOf is the settled base per machine state, -1 before placement.
	// baseOwner names the state whose base marker claims a slot.
	// slotTarget names the state an edge slot leads to, and inSlots
	// lists the edge slots leading to a state, so relocation can patch
	// both directions.
	baseOf     []int64
	baseOwner  []int32
	slotTarget []int32
	inSlots    [][]uint32

	stack       []int
	relocations int
}

// evictionPlan remembers the first candidate base whose conflicts were all
// owned by lighter states, in case the scan window closes without a clean
// fit.
type evictionPlan struct {
	base     uint32
	owners   []int
	reserved []uint32
}

func (e *encoder) run() (*FST, error) {
	n := len(e.m.trans)
	e.baseOf = make([]int64, n)
	for i := range e.baseOf {
		e.baseOf[i] = -1
	}
	e.inSlots = make([][]uint32, n)
	e.residual = make(map[uint32]outRef)
	e.residRefs = make(map[int]outRef)
	e.free = newFreeList()

	root := e.m.root
	if err := e.place(root, -1); err != nil {
		return nil, err
	}
	// The first placement lands at base 0, so slot 0 is both the root's
	// marker and its address. It carries the root's finality; nothing
	// transitions into the root in an acyclic machine.
	if err := e.stamp(0, root); err != nil {
		return nil, err
	}

	e.stack = append(e.stack, root)
	for len(e.stack) > 0 {
		s := e.stack[len(e.stack)-1]
		e.stack = e.stack[:len(e.stack)-1]
		bs := uint32(e.baseOf[s])
		for _, tr := range e.m.trans[s] {
			t := tr.Target
			if e.baseOf[t] < 0 {
				if err := e.place(t, s); err != nil {
					return nil, err
				}
				e.stack = append(e.stack, t)
			}
			e.base[bs+uint32(e.alpha.code[tr.Label])] = uint32(e.baseOf[t])
		}
	}

	top := uint32(0)
	for i := e.free.size; i > 0; i-- {
		if !e.free.vacant[i-1] {
			top = i
			break
		}
	}
	numStates := 0
	for _, b := range e.baseOf {
		if b >= 0 {
			numStates++
		}
	}
	f := &FST{
		check:     e.check[:top],
		base:      e.base[:top],
		term:      e.term[:top],
		outs:      e.outs[:top],
		outData:   e.outData,
		residual:  e.residual,
		alpha:     e.alpha,
		slots:     top,
		occupied:  int(e.free.occupied()),
		numStates: numStates,
		numKeys:   e.m.countKeys(),
	}
	e.o.log.Debug("encoded transducer",
		zap.Int("keys", f.numKeys),
		zap.Int("states", f.numStates),
		zap.Uint32("slots", f.slots),
		zap.Int("occupied", f.occupied),
		zap.Int("relocations", e.relocations),
	)
	return f, nil
}

// place finds a base for machine state x and settles it there. inFlight is
// the state whose edges are being wired, which must not move; -1 for the
// root placement.
func (e *encoder) place(x, inFlight int) error {
	codes := e.codesOf(x)
	b, plan, err := e.findBase(codes, x, inFlight)
	if err != nil {
		return err
	}
	if plan != nil {
		for _, victim := range plan.owners {
			if err := e.relocate(victim, plan.reserved); err != nil {
				return err
			}
		}
		b = plan.base
	}
	return e.settle(x, b)
}

// findBase scans the free list for a base whose whole footprint is vacant,
// giving up after the scan window. Failing that it returns the first plan
// whose conflicts can be evicted, and failing that a base in fresh space
// at the tail.
func (e *encoder) findBase(codes []uint16, x, inFlight int) (uint32, *evictionPlan, error) {
	maxCode := uint32(0)
	if len(codes) > 0 {
		maxCode = uint32(codes[len(codes)-1])
	}
	var plan *evictionPlan
	probes := 0
	for c := e.free.first(); c != noSlot && probes < e.o.scanWindow; c = e.free.following(c) {
		probes++
		if uint64(c)+uint64(maxCode) >= uint64(e.o.maxSlots) {
			break
		}
		conflicts := e.probe(c, codes)
		if len(conflicts) == 0 {
			return c, nil, nil
		}
		if plan == nil {
			if owners, ok := e.evictable(conflicts, x, inFlight); ok {
				plan = &evictionPlan{base: c, owners: owners, reserved: footprint(c, codes)}
			}
		}
	}
	if plan != nil {
		return 0, plan, nil
	}
	b := e.free.size
	if uint64(b)+uint64(maxCode) >= uint64(e.o.maxSlots) {
		return 0, nil, fmt.Errorf("%w: need slot %d of %d", ErrAddressSpaceExhausted, uint64(b)+uint64(maxCode), e.o.maxSlots)
	}
	return b, nil, nil
}

// probe returns the occupied slots in the footprint of base b. Slots past
// the current array end count as vacant; growth will cover them.
func (e *encoder) probe(b uint32, codes []uint16) []uint32 {
	var conflicts []uint32
	for _, code := range codes {
		t := b + uint32(code)
		if t < e.free.size && !e.free.vacant[t] {
			conflicts = append(conflicts, t)
		}
	}
	return conflicts
}

// evictable resolves each conflicting slot to its owning state and reports
// whether all of them may be moved: every owner must have strictly fewer
// transitions than x, and neither the root nor the in flight state ever
// moves.
func (e *encoder) evictable(conflicts []uint32, x, inFlight int) ([]int, bool) {
	var owners []int
	for _, t := range conflicts {
		var owner int
		if code := e.check[t]; code != 0 {
			owner = int(e.baseOwner[t-uint32(code)])
		} else {
			owner = int(e.baseOwner[t])
		}
		if owner == e.m.root || owner == inFlight {
			return nil, false
		}
		if len(e.m.trans[owner]) >= len(e.m.trans[x]) {
			return nil, false
		}
		known := false
		for _, o := range owners {
			if o == owner {
				known = true
				break
			}
		}
		if !known {
			owners = append(owners, owner)
		}
	}
	return owners, true
}

// settle claims the footprint of x at base b and writes its edges.
func (e *encoder) settle(x int, b uint32) error {
	ts := e.m.trans[x]
	top := b
	if len(ts) > 0 {
		top = b + uint32(e.alpha.code[ts[len(ts)-1].Label])
	}
	if err := e.ensure(top); err != nil {
		return err
	}
	e.free.claim(b)
	e.baseOwner[b] = int32(x)
	e.baseOf[x] = int64(b)
	for _, tr := range ts {
		code := e.alpha.code[tr.Label]
		slot := b + uint32(code)
		e.free.claim(slot)
		e.check[slot] = code
		ref, err := e.intern(tr.Output)
		if err != nil {
			return err
		}
		e.outs[slot] = ref
		t := tr.Target
		e.slotTarget[slot] = int32(t)
		e.inSlots[t] = append(e.inSlots[t], slot)
		if e.baseOf[t] >= 0 {
			e.base[slot] = uint32(e.baseOf[t])
		}
		if err := e.stamp(slot, t); err != nil {
			return err
		}
	}
	return nil
}

// relocate moves state x to a fresh base chosen outside the reserved
// footprint, patching every slot that referred to the old one.
func (e *encoder) relocate(x int, reserved []uint32) error {
	old := uint32(e.baseOf[x])
	codes := e.codesOf(x)
	nb, err := e.findRelocationBase(codes, reserved)
	if err != nil {
		return err
	}
	top := nb
	if len(codes) > 0 {
		top = nb + uint32(codes[len(codes)-1])
	}
	if err := e.ensure(top); err != nil {
		return err
	}

	// Claim the new footprint before releasing the old one; the two
	// never overlap because the search only returns fully vacant bases.
	e.free.claim(nb)
	e.baseOwner[nb] = int32(x)
	e.baseOwner[old] = -1
	for _, code := range codes {
		from := old + uint32(code)
		to := nb + uint32(code)
		e.free.claim(to)
		e.check[to] = code
		e.base[to] = e.base[from]
		e.term[to] = e.term[from]
		e.outs[to] = e.outs[from]
		if ref, ok := e.residual[from]; ok {
			e.residual[to] = ref
			delete(e.residual, from)
		}
		tgt := e.slotTarget[from]
		e.slotTarget[to] = tgt
		e.slotTarget[from] = -1
		if tgt >= 0 {
			ins := e.inSlots[tgt]
			for i, s := range ins {
				if s == from {
					ins[i] = to
					break
				}
			}
		}
		e.check[from] = 0
		e.base[from] = 0
		e.term[from] = termNot
		e.outs[from] = outRef{}
		e.free.release(from)
	}
	e.free.release(old)

	e.baseOf[x] = int64(nb)
	for _, s := range e.inSlots[x] {
		e.base[s] = nb
	}
	e.relocations++
	e.o.log.Debug("relocated state",
		zap.Int("state", x),
		zap.Uint32("from", old),
		zap.Uint32("to", nb),
	)
	return nil
}

// findRelocationBase is the unbounded variant of findBase used while an
// eviction is in progress: it accepts only fully vacant footprints and
// skips anything touching the reserved slots.
func (e *encoder) findRelocationBase(codes []uint16, reserved []uint32) (uint32, error) {
	maxCode := uint32(0)
	if len(codes) > 0 {
		maxCode = uint32(codes[len(codes)-1])
	}
	for c := e.free.first(); c != noSlot; c = e.free.following(c) {
		if uint64(c)+uint64(maxCode) >= uint64(e.o.maxSlots) {
			break
		}
		if intersects(c, codes, reserved) {
			continue
		}
		if len(e.probe(c, codes)) == 0 {
			return c, nil
		}
	}
	for b := e.free.size; ; b++ {
		if uint64(b)+uint64(maxCode) >= uint64(e.o.maxSlots) {
			return 0, fmt.Errorf("%w: need slot %d of %d", ErrAddressSpaceExhausted, uint64(b)+uint64(maxCode), e.o.maxSlots)
		}
		if !intersects(b, codes, reserved) {
			return b, nil
		}
	}
}

// ensure grows the arrays until slot top is addressable.
func (e *encoder) ensure(top uint32) error {
	for e.free.size <= top {
		if err := e.grow(); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) grow() error {
	size := e.free.size
	if uint64(size) >= uint64(e.o.maxSlots) {
		return fmt.Errorf("%w: %d slots", ErrAddressSpaceExhausted, size)
	}
	n := uint32(e.o.blockSize)
	if uint64(size)+uint64(n) > uint64(e.o.maxSlots) {
		n = uint32(e.o.maxSlots) - size
	}
	e.free.grow(n)
	e.check = append(e.check, make([]uint16, n)...)
	e.base = append(e.base, make([]uint32, n)...)
	e.term = append(e.term, make([]terminal, n)...)
	e.outs = append(e.outs, make([]outRef, n)...)
	for i := uint32(0); i < n; i++ {
		e.baseOwner = append(e.baseOwner, -1)
		e.slotTarget = append(e.slotTarget, -1)
	}
	e.o.log.Debug("grew slot arrays", zap.Uint32("slots", e.free.size))
	return nil
}

// stamp records the finality of state t on slot, interning its residual
// when there is one. A shared state is stamped once per incoming edge; the
// interned bytes are shared across its slots.
func (e *encoder) stamp(slot uint32, t int) error {
	switch {
	case !e.m.final[t]:
		e.term[slot] = termNot
	case len(e.m.resid[t]) == 0:
		e.term[slot] = termEmpty
	default:
		ref, ok := e.residRefs[t]
		if !ok {
			var err error
			if ref, err = e.intern(e.m.resid[t]); err != nil {
				return err
			}
			e.residRefs[t] = ref
		}
		e.term[slot] = termInner
		e.residual[slot] = ref
	}
	return nil
}

// intern appends b to the output blob and returns its reference.
func (e *encoder) intern(b []byte) (outRef, error) {
	if len(b) == 0 {
		return outRef{}, nil
	}
	if uint64(len(e.outData))+uint64(len(b)) > math.MaxUint32 {
		return outRef{}, fmt.Errorf("%w: output data past 4 GiB", ErrAddressSpaceExhausted)
	}
	pos := uint32(len(e.outData))
	e.outData = append(e.outData, b...)
	return outRef{pos: pos, n: uint32(len(b))}, nil
}

func (e *encoder) codesOf(x int) []uint16 {
	ts := e.m.trans[x]
	codes := make([]uint16, len(ts))
	for i, tr := range ts {
		codes[i] = e.alpha.code[tr.Label]
	}
	return codes
}

func footprint(b uint32, codes []uint16) []uint32 {
	fp := make([]uint32, 0, len(codes)+1)
	fp = append(fp, b)
	for _, code := range codes {
		fp = append(fp, b+uint32(code))
	}
	return fp
}

func intersects(b uint32, codes []uint16, reserved []uint32) bool {
	for _, r := range reserved {
		if r == b {
			return true
		}
		for _, code := range codes {
			if r == b+uint32(code) {
				return true
			}
		}
	}
	return false
}
