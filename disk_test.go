package fst_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/milden6/fst"
)

var dictPairs = []pair{
	{"car", "02"},
	{"cart", "03"},
	{"cat", "01"},
	{"do", ""},
	{"dog", "street"},
}

func requireSameFST(t *testing.T, want, got *fst.FST, pairs []pair) {
	t.Helper()
	require.Equal(t, want.NumKeys(), got.NumKeys())
	require.Equal(t, want.NumStates(), got.NumStates())
	require.Equal(t, want.NumSlots(), got.NumSlots())
	require.Equal(t, want.Density(), got.Density())
	require.Equal(t, want.Alphabet(), got.Alphabet())
	for _, p := range pairs {
		requireValue(t, got, p.key, p.val)
	}
	require.False(t, got.Contains([]byte("missing")))
}

func TestSaveLoad(t *testing.T) {
	f := buildFST(t, dictPairs)
	path := filepath.Join(t.TempDir(), "dict.fst")

	size, err := f.Save(path)
	require.NoError(t, err)
	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, size, fi.Size())

	g, err := fst.Load(path)
	require.NoError(t, err)
	requireSameFST(t, f, g, dictPairs)
	require.NoError(t, g.Close())
}

func TestReadInPlace(t *testing.T) {
	f := buildFST(t, dictPairs)

	var buf bytes.Buffer
	n, err := f.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)

	g, err := fst.Read(bytes.NewReader(buf.Bytes()), 0)
	require.NoError(t, err)
	requireSameFST(t, f, g, dictPairs)

	// The resumable walk behaves identically through the reader.
	res := g.Lookup([]byte("ca"))
	require.Equal(t, fst.Prefix, res.Kind)
	require.Equal(t, "0", string(res.Output))
	rest := g.LookupAt(res.State, []byte("rt"))
	require.Equal(t, fst.Found, rest.Kind)
	require.Equal(t, "3", string(rest.Output))

	hits := g.FindAllPrefixesOf([]byte("carton"))
	require.Len(t, hits, 2)
	require.Equal(t, "car", string(hits[0].Key))
	require.Equal(t, "02", string(hits[0].Output))
	require.Equal(t, "cart", string(hits[1].Key))
	require.Equal(t, "03", string(hits[1].Output))

	memHits := collectEnum(f, func(enumHit) fst.EnumerationResult { return fst.Continue })
	diskHits := collectEnum(g, func(enumHit) fst.EnumerationResult { return fst.Continue })
	require.Equal(t, memHits, diskHits)
}

func TestReadAtOffset(t *testing.T) {
	f := buildFST(t, dictPairs)

	var buf bytes.Buffer
	buf.WriteString("padding")
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	g, err := fst.Read(bytes.NewReader(buf.Bytes()), int64(len("padding")))
	require.NoError(t, err)
	requireSameFST(t, f, g, dictPairs)
}

func TestReadAll(t *testing.T) {
	f := buildFST(t, dictPairs)
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	raw := append([]byte(nil), buf.Bytes()...)
	g, err := fst.ReadAll(bytes.NewReader(raw), 0)
	require.NoError(t, err)

	// The materialized copy owns its data.
	for i := range raw {
		raw[i] = 0xff
	}
	requireSameFST(t, f, g, dictPairs)

	var again bytes.Buffer
	_, err = g.WriteTo(&again)
	require.NoError(t, err)
	require.Equal(t, buf.Bytes(), again.Bytes())
}

func TestWriteToDeterministic(t *testing.T) {
	var first, second bytes.Buffer
	_, err := buildFST(t, dictPairs).WriteTo(&first)
	require.NoError(t, err)
	_, err = buildFST(t, dictPairs).WriteTo(&second)
	require.NoError(t, err)
	require.Equal(t, first.Bytes(), second.Bytes())

	// A reader backed transducer writes back its exact bytes.
	g, err := fst.Read(bytes.NewReader(first.Bytes()), 0)
	require.NoError(t, err)
	var copied bytes.Buffer
	_, err = g.WriteTo(&copied)
	require.NoError(t, err)
	require.Equal(t, first.Bytes(), copied.Bytes())
}

func TestReadRejectsCorrupt(t *testing.T) {
	var buf bytes.Buffer
	_, err := buildFST(t, dictPairs).WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.Bytes()

	corrupt := func(mutate func(b []byte) []byte) error {
		b := append([]byte(nil), raw...)
		_, err := fst.Read(bytes.NewReader(mutate(b)), 0)
		return err
	}

	err = corrupt(func(b []byte) []byte { b[4] = 'X'; return b })
	require.ErrorIs(t, err, fst.ErrBadMagic)

	err = corrupt(func(b []byte) []byte { b[8] = 9; return b })
	require.ErrorIs(t, err, fst.ErrBadVersion)

	err = corrupt(func(b []byte) []byte { return b[:16] })
	require.ErrorIs(t, err, fst.ErrCorrupt)

	err = corrupt(func(b []byte) []byte { return b[:3] })
	require.ErrorIs(t, err, fst.ErrCorrupt)

	// A size field that disagrees with the sections is rejected.
	err = corrupt(func(b []byte) []byte { b[3]++; return b })
	require.ErrorIs(t, err, fst.ErrCorrupt)
}

func TestEmptyRoundTrip(t *testing.T) {
	f, err := fst.NewBuilder().Finish()
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = f.WriteTo(&buf)
	require.NoError(t, err)

	g, err := fst.Read(bytes.NewReader(buf.Bytes()), 0)
	require.NoError(t, err)
	require.Equal(t, 0, g.NumKeys())
	require.False(t, g.Contains(nil))
	require.False(t, g.Contains([]byte("a")))
	require.Empty(t, g.Alphabet())
}

func TestSaveLoadEmptyAndNulKeys(t *testing.T) {
	pairs := []pair{{"", "root"}, {"\x00", "zero"}, {"\x00a", "za"}}
	f := buildFST(t, pairs)
	path := filepath.Join(t.TempDir(), "nul.fst")

	_, err := f.Save(path)
	require.NoError(t, err)
	g, err := fst.Load(path)
	require.NoError(t, err)
	defer g.Close()

	requireSameFST(t, f, g, pairs)
	res := g.Lookup(nil)
	require.Equal(t, fst.Found, res.Kind)
	require.Equal(t, "root", string(res.Output))
}
