package fst

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLcp(t *testing.T) {
	cases := []struct {
		a, b, want string
	}{
		{"", "", ""},
		{"", "abc", ""},
		{"abc", "", ""},
		{"abc", "abc", "abc"},
		{"abc", "abd", "ab"},
		{"abc", "abcdef", "abc"},
		{"xyz", "abc", ""},
	}
	for _, c := range cases {
		require.Equal(t, c.want, string(lcp([]byte(c.a), []byte(c.b))), "lcp(%q, %q)", c.a, c.b)
	}
}

func TestConcat(t *testing.T) {
	a, b := []byte("ab"), []byte("cd")
	require.Equal(t, "abcd", string(concat(a, b)))
	require.Equal(t, "ab", string(concat(a, nil)))
	require.Equal(t, "cd", string(concat(nil, b)))
	require.Nil(t, concat(nil, nil))

	// Joining two non empty slices never aliases either input.
	joined := concat(a, b)
	joined[0] = '!'
	require.Equal(t, "ab", string(a))
}

// machineValues walks every accepted key and records its value.
func machineValues(m *machine) map[string]string {
	vals := map[string]string{}
	var walk func(s int, key, out []byte)
	walk = func(s int, key, out []byte) {
		if m.final[s] {
			v := append(append([]byte(nil), out...), m.resid[s]...)
			vals[string(key)] = string(v)
		}
		for _, tr := range m.trans[s] {
			walk(tr.Target, append(key, tr.Label), append(out, tr.Output...))
		}
	}
	walk(m.root, nil, nil)
	return vals
}

func TestFactorOutputsHoistsToRoot(t *testing.T) {
	m := &machine{
		final: []bool{false, false, true},
		resid: [][]byte{nil, nil, []byte("23")},
		trans: [][]Transition{
			{{Label: 'a', Output: []byte("1"), Target: 1}},
			{{Label: 'b', Target: 2}},
			nil,
		},
	}
	factorOutputs(m)

	require.Equal(t, "123", string(m.trans[0][0].Output))
	require.Empty(t, m.trans[1][0].Output)
	require.Empty(t, m.resid[2])
}

func TestFactorOutputsKeepsRootResidual(t *testing.T) {
	m := &machine{
		final: []bool{true, true},
		resid: [][]byte{[]byte("vq"), nil},
		trans: [][]Transition{
			{{Label: 'a', Output: []byte("vv"), Target: 1}},
			nil,
		},
	}
	factorOutputs(m)

	// The common "v" is not stripped at the root; there is no edge above
	// it to carry the prefix.
	require.Equal(t, "vq", string(m.resid[0]))
	require.Equal(t, "vv", string(m.trans[0][0].Output))
}

func TestFactorOutputsPreservesValues(t *testing.T) {
	m := &machine{
		final: []bool{false, true, false, true},
		resid: [][]byte{nil, []byte("q"), nil, []byte("!")},
		trans: [][]Transition{
			{{Label: 'a', Output: []byte("x"), Target: 1}, {Label: 'b', Output: []byte("xy"), Target: 2}},
			{{Label: 'c', Output: []byte("z"), Target: 3}},
			{{Label: 'c', Output: []byte("w"), Target: 3}},
			nil,
		},
	}
	want := machineValues(m)
	require.Equal(t, map[string]string{
		"a":  "xq",
		"ac": "xz!",
		"bc": "xyw!",
	}, want)

	factorOutputs(m)
	require.Equal(t, want, machineValues(m))

	// The shared leaf lost its residual to both incoming edges.
	require.Empty(t, m.resid[3])
	require.Equal(t, "z!", string(m.trans[1][0].Output))
	require.Equal(t, "xyw!", string(m.trans[0][1].Output))
	require.Empty(t, m.trans[2][0].Output)
}

func TestFactorOutputsOnFactoredMachineIsNoop(t *testing.T) {
	m := &machine{
		final: []bool{false, false, true},
		resid: [][]byte{nil, nil, []byte("23")},
		trans: [][]Transition{
			{{Label: 'a', Output: []byte("1"), Target: 1}},
			{{Label: 'b', Target: 2}},
			nil,
		},
	}
	factorOutputs(m)
	before := machineValues(m)
	edge := string(m.trans[0][0].Output)

	factorOutputs(m)
	require.Equal(t, before, machineValues(m))
	require.Equal(t, edge, string(m.trans[0][0].Output))
}
