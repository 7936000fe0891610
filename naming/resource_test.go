package naming

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripTextualForm(t *testing.T) {
	cases := []Resource{
		None,
		NewFile("/tmp/a"),
		NewStream("10.0.0.1:1337", "10.0.0.2:1338"),
		{Kind: KindProcess, PID: 1, StartTime: 1234, ExePath: "/usr/bin/cat"},
	}
	for _, r := range cases {
		s := r.String()
		got, err := Parse(s)
		require.NoError(t, err)
		require.Equal(t, r, got, "round trip of %q", s)
	}
}

func TestParseFile(t *testing.T) {
	r, err := Parse("file:///tmp/a")
	require.NoError(t, err)
	require.Equal(t, KindFile, r.Kind)
	require.Equal(t, "/tmp/a", r.Path)
}

func TestParseStreamRejectsMalformedSockets(t *testing.T) {
	_, err := Parse("stream://not-an-ip:1337::::10.0.0.2:1338")
	require.Error(t, err)

	_, err = Parse("stream://10.0.0.1::::10.0.0.2:1338")
	require.Error(t, err)
}

func TestParseNone(t *testing.T) {
	r, err := Parse("None")
	require.NoError(t, err)
	require.True(t, r.IsNone())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("bogus://whatever")
	require.Error(t, err)
}

func TestResourceIsComparable(t *testing.T) {
	a := NewFile("/tmp/a")
	b := NewFile("/tmp/a")
	c := NewFile("/tmp/b")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)

	set := map[Resource]struct{}{a: {}}
	_, ok := set[b]
	require.True(t, ok, "equal resources must hash identically")
}

func TestLocalizedResourceRoundTrip(t *testing.T) {
	lr := NewLocalized("10.0.0.1", NewFile("/tmp/a"))
	s := lr.String()
	require.Equal(t, "file:///tmp/a@10.0.0.1", s)

	got, err := ParseLocalized(s)
	require.NoError(t, err)
	require.Equal(t, lr, got)
}

func TestLocalizedResourceStream(t *testing.T) {
	lr := NewLocalized("n2", NewStream("10.0.0.1:1337", "10.0.0.2:1338"))
	got, err := ParseLocalized(lr.String())
	require.NoError(t, err)
	require.Equal(t, lr, got)
}
