package fst_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/milden6/fst"
)

func TestBuilderInsertOrder(t *testing.T) {
	b := fst.NewBuilder()
	require.NoError(t, b.Insert([]byte("b"), []byte("1")))
	require.ErrorIs(t, b.Insert([]byte("a"), []byte("2")), fst.ErrOutOfOrderKey)
	require.ErrorIs(t, b.Insert([]byte("b"), []byte("3")), fst.ErrDuplicateKey)
	require.NoError(t, b.Insert([]byte("ba"), []byte("4")))

	b.Automaton()
	require.ErrorIs(t, b.Insert([]byte("c"), []byte("5")), fst.ErrBuilderFinished)
}

func TestBuilderEmpty(t *testing.T) {
	f, err := fst.NewBuilder().Finish()
	require.NoError(t, err)

	require.Equal(t, 0, f.NumKeys())
	require.False(t, f.Contains(nil))
	require.False(t, f.Contains([]byte("a")))
	_, ok := f.Get([]byte(""))
	require.False(t, ok)
}

func TestSingleEntry(t *testing.T) {
	f := buildFST(t, []pair{{"hello", "world"}})

	requireValue(t, f, "hello", "world")
	require.Equal(t, 1, f.NumKeys())
	require.True(t, f.Contains([]byte("hello")))
	require.False(t, f.Contains([]byte("hell")))
	require.False(t, f.Contains([]byte("hellos")))
	require.False(t, f.Contains(nil))
}

func TestEmptyKey(t *testing.T) {
	f := buildFST(t, []pair{{"", "root"}, {"a", "x"}})

	requireValue(t, f, "", "root")
	requireValue(t, f, "a", "x")
	require.Equal(t, 2, f.NumKeys())

	res := f.Lookup(nil)
	require.Equal(t, fst.Found, res.Kind)
	require.Equal(t, "root", string(res.Output))
}

// Three keys with interleaved values: the shared prefix "ca" carries the
// common "0", and the leaves of "cat" and "cart" collapse into one state.
func TestSharedPrefixOutputs(t *testing.T) {
	f := buildFST(t, []pair{{"car", "02"}, {"cart", "03"}, {"cat", "01"}})

	requireValue(t, f, "car", "02")
	requireValue(t, f, "cart", "03")
	requireValue(t, f, "cat", "01")
	require.Equal(t, 3, f.NumKeys())
	require.Equal(t, 5, f.NumStates())

	res := f.Lookup([]byte("c"))
	require.Equal(t, fst.Prefix, res.Kind)
	require.Equal(t, "0", string(res.Output))
}

func TestLookupResume(t *testing.T) {
	f := buildFST(t, []pair{{"car", "02"}, {"cart", "03"}, {"cat", "01"}})

	res := f.Lookup([]byte("ca"))
	require.Equal(t, fst.Prefix, res.Kind)
	require.Equal(t, "0", string(res.Output))

	// Resuming consumes the rest of the key and emits the rest of the
	// value; the two segments concatenate to the stored value.
	rest := f.LookupAt(res.State, []byte("t"))
	require.Equal(t, fst.Found, rest.Kind)
	require.Equal(t, "1", string(rest.Output))

	rest = f.LookupAt(res.State, []byte("r"))
	require.Equal(t, fst.Found, rest.Kind)
	require.Equal(t, "2", string(rest.Output))

	rest = f.LookupAt(res.State, []byte("x"))
	require.Equal(t, fst.NotFound, rest.Kind)
}

func TestBuilderNumKeys(t *testing.T) {
	b := fst.NewBuilder()
	require.Equal(t, 0, b.NumKeys())
	require.NoError(t, b.Insert([]byte("one"), nil))
	require.NoError(t, b.Insert([]byte("two"), nil))
	require.Equal(t, 2, b.NumKeys())

	f, err := b.Finish()
	require.NoError(t, err)
	require.Equal(t, 2, f.NumKeys())
	requireValue(t, f, "one", "")
	requireValue(t, f, "two", "")
}

func TestBuilderLongSharedTail(t *testing.T) {
	// Suffix sharing: four keys ending in "ation" reuse one tail chain.
	f := buildFST(t, []pair{
		{"citation", "1"},
		{"nation", "2"},
		{"ration", "3"},
		{"station", "4"},
	})
	requireValue(t, f, "citation", "1")
	requireValue(t, f, "nation", "2")
	requireValue(t, f, "ration", "3")
	requireValue(t, f, "station", "4")

	// Far fewer states than the 29 key bytes.
	require.Less(t, f.NumStates(), 20)
}
