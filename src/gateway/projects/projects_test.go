package projects

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	cases := []struct {
		in   string
		want uint32
		ok   bool
	}{
		{"27", 27, true},
		{"1", 1, true},
		{"99999999", 0, false}, // above MaxID
		{"100", 0, false},      // in bounds but not registered
		{"abc", 0, false},
		{"0", 0, false},
		{"-3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseID(tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestLookup(t *testing.T) {
	p, ok := Lookup(27)
	require.True(t, ok)
	require.Equal(t, "MegaLens", p.Name)

	_, ok = Lookup(100)
	require.False(t, ok)
}

func TestAllSortedByID(t *testing.T) {
	all := All()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		require.Less(t, all[i-1].ID, all[i].ID)
	}
}
