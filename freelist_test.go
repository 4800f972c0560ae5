package fst

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func vacancies(l *freeList) []uint32 {
	var out []uint32
	for s := l.first(); s != noSlot; s = l.following(s) {
		out = append(out, s)
	}
	return out
}

func TestFreeListGrowAndClaim(t *testing.T) {
	l := newFreeList()
	require.Equal(t, noSlot, l.first())
	require.False(t, l.isVacant(0))

	l.grow(4)
	require.Equal(t, []uint32{0, 1, 2, 3}, vacancies(l))
	require.Equal(t, uint32(0), l.occupied())

	l.claim(1)
	l.claim(3)
	require.Equal(t, []uint32{0, 2}, vacancies(l))
	require.Equal(t, uint32(2), l.occupied())
	require.True(t, l.isVacant(0))
	require.False(t, l.isVacant(1))
	require.False(t, l.isVacant(9))
}

func TestFreeListClaimEnds(t *testing.T) {
	l := newFreeList()
	l.grow(3)

	l.claim(0)
	require.Equal(t, []uint32{1, 2}, vacancies(l))
	l.claim(2)
	require.Equal(t, []uint32{1}, vacancies(l))
	l.claim(1)
	require.Empty(t, vacancies(l))
	require.Equal(t, noSlot, l.first())
	require.Equal(t, uint32(3), l.occupied())

	// Growth after exhaustion relinks from an empty list.
	l.grow(2)
	require.Equal(t, []uint32{3, 4}, vacancies(l))
}

func TestFreeListReleaseSorted(t *testing.T) {
	l := newFreeList()
	l.grow(6)
	for _, s := range []uint32{0, 1, 2, 3, 4} {
		l.claim(s)
	}
	require.Equal(t, []uint32{5}, vacancies(l))

	l.release(2)
	require.Equal(t, []uint32{2, 5}, vacancies(l))
	l.release(4)
	require.Equal(t, []uint32{2, 4, 5}, vacancies(l))
	l.release(0)
	require.Equal(t, []uint32{0, 2, 4, 5}, vacancies(l))

	// Claiming again walks the rebuilt links both ways.
	l.claim(4)
	require.Equal(t, []uint32{0, 2, 5}, vacancies(l))
	require.Equal(t, uint32(3), l.occupied())
}

func TestFreeListReleaseAtTail(t *testing.T) {
	l := newFreeList()
	l.grow(3)
	l.claim(0)
	l.claim(1)
	l.claim(2)

	l.release(2)
	require.Equal(t, []uint32{2}, vacancies(l))
	l.release(0)
	require.Equal(t, []uint32{0, 2}, vacancies(l))
	l.release(1)
	require.Equal(t, []uint32{0, 1, 2}, vacancies(l))
}
