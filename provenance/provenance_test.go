package provenance

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trace2e/t2ecore/naming"
)

func TestDefaultSelfMembership(t *testing.T) {
	e := New("n1")
	f := naming.NewFile("/tmp/a")
	refs := e.GetReferences(f)
	require.Contains(t, refs, "n1")
	_, ok := refs["n1"][f]
	require.True(t, ok)
}

func TestStreamHasNoDefaultProvenance(t *testing.T) {
	e := New("n1")
	s := naming.NewStream("10.0.0.1:1", "10.0.0.2:2")
	refs := e.GetReferences(s)
	require.Empty(t, refs)
}

func TestUpdateProvenanceUnions(t *testing.T) {
	e := New("n1")
	a := naming.NewFile("/tmp/a")
	p := naming.NewProcess(1, fixedTime(), "/bin/cat")

	e.UpdateProvenance(a, p)
	refs := e.GetReferences(p)
	require.Contains(t, refs["n1"], a)
	require.Contains(t, refs["n1"], p)
}

func TestTransitiveProvenanceChain(t *testing.T) {
	e := New("n1")
	a := naming.NewFile("/tmp/a")
	b := naming.NewProcess(1, fixedTime(), "/bin/cat")
	c := naming.NewFile("/tmp/c")

	e.UpdateProvenance(a, b)
	e.UpdateProvenance(b, c)

	refsA := e.GetReferences(a)
	refsC := e.GetReferences(c)
	for node, set := range refsA {
		for res := range set {
			_, ok := refsC[node][res]
			require.True(t, ok, "refsC must be a superset of refsA (node=%s res=%v)", node, res)
		}
	}
	require.Contains(t, refsC["n1"], a)
	require.Contains(t, refsC["n1"], b)
}

func TestStreamNeverAppearsInReferences(t *testing.T) {
	e := New("n1")
	a := naming.NewFile("/tmp/a")
	s := naming.NewStream("10.0.0.1:1", "10.0.0.2:2")
	p := naming.NewProcess(2, fixedTime(), "/bin/nc")

	e.UpdateProvenance(a, s)
	e.UpdateProvenance(s, p)

	refs := e.GetReferences(p)
	for _, set := range refs {
		for res := range set {
			require.False(t, res.IsStream(), "no Stream resource may appear in provenance")
		}
	}
	require.Contains(t, refs["n1"], a)
}

func TestUpdateProvenanceRawFromRemote(t *testing.T) {
	e := New("n2")
	remoteRefs := References{
		"n1": {naming.NewFile("/tmp/a"): {}},
	}
	local := naming.NewProcess(1, fixedTime(), "/bin/cat")
	e.UpdateProvenanceRaw(remoteRefs, local)

	refs := e.GetReferences(local)
	require.Contains(t, refs["n1"], naming.NewFile("/tmp/a"))
	require.Contains(t, refs["n2"], local)
}

func TestMonotonicNeverRemoves(t *testing.T) {
	e := New("n1")
	a := naming.NewFile("/tmp/a")
	b := naming.NewFile("/tmp/b")
	c := naming.NewFile("/tmp/c")
	dst := naming.NewFile("/tmp/dst")

	e.UpdateProvenance(a, dst)
	e.UpdateProvenance(b, dst)
	e.UpdateProvenance(c, dst)

	refs := e.GetReferences(dst)
	require.Contains(t, refs["n1"], a)
	require.Contains(t, refs["n1"], b)
	require.Contains(t, refs["n1"], c)
	require.Contains(t, refs["n1"], dst)
}
