package fst

// noSlot is the nil value for slot links.
const noSlot = ^uint32(0)

// freeList tracks the vacant slots of the double array in a doubly linked
// list kept in ascending order, embedded in parallel arrays. Placement
// scans walk only vacancies instead of sweeping every slot, which is what
// keeps encoding near linear on mostly full arrays.
type freeList struct {
	prev   []uint32
	next   []uint32
	vacant []bool
	head   uint32
	tail   uint32
	size   uint32
	nfree  uint32
}

func newFreeList() *freeList {
	return &freeList{head: noSlot, tail: noSlot}
}

// grow appends n vacant slots at the tail. New slots have the highest
// addresses, so the list stays sorted.
func (l *freeList) grow(n uint32) {
	for i := uint32(0); i < n; i++ {
		s := l.size + i
		l.prev = append(l.prev, l.tail)
		l.next = append(l.next, noSlot)
		l.vacant = append(l.vacant, true)
		if l.tail != noSlot {
			l.next[l.tail] = s
		} else {
			l.head = s
		}
		l.tail = s
	}
	l.size += n
	l.nfree += n
}

// isVacant reports whether s is a tracked, unclaimed slot.
func (l *freeList) isVacant(s uint32) bool {
	return s < l.size && l.vacant[s]
}

// first returns the lowest vacant slot, or noSlot.
func (l *freeList) first() uint32 { return l.head }

// following returns the next vacant slot above vacant slot s, or noSlot.
func (l *freeList) following(s uint32) uint32 { return l.next[s] }

// claim removes vacant slot s from the list.
func (l *freeList) claim(s uint32) {
	p, n := l.prev[s], l.next[s]
	if p != noSlot {
		l.next[p] = n
	} else {
		l.head = n
	}
	if n != noSlot {
		l.prev[n] = p
	} else {
		l.tail = p
	}
	l.vacant[s] = false
	l.nfree--
}

// release puts claimed slot s back, reinserting at its sorted position.
// Eviction hands back low addresses, so the walk from the head is short.
func (l *freeList) release(s uint32) {
	c := l.head
	for c != noSlot && c < s {
		c = l.next[c]
	}
	var p uint32
	if c == noSlot {
		p = l.tail
	} else {
		p = l.prev[c]
	}
	l.prev[s], l.next[s] = p, c
	if p != noSlot {
		l.next[p] = s
	} else {
		l.head = s
	}
	if c != noSlot {
		l.prev[c] = s
	} else {
		l.tail = s
	}
	l.vacant[s] = true
	l.nfree++
}

// occupied returns the number of claimed slots.
func (l *freeList) occupied() uint32 { return l.size - l.nfree }
