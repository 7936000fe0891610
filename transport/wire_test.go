package transport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trace2e/t2ecore/consent"
	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/policy"
	"github.com/trace2e/t2ecore/provenance"
)

func TestWirePolicyRoundTrip(t *testing.T) {
	p := policy.Policy{Confidentiality: policy.Secret, Integrity: 7, Deleted: policy.Pending, Consent: true}
	require.Equal(t, p, toWirePolicy(p).toDomain())
}

func TestWireReferencesRoundTrip(t *testing.T) {
	file := naming.NewFile("/tmp/a")
	refs := provenance.References{"n1": {file: {}}}
	w := toWireReferences(refs)
	back, err := w.toDomain()
	require.NoError(t, err)
	require.Equal(t, refs, back)
}

func TestWirePolicyMapRoundTrip(t *testing.T) {
	file := naming.NewFile("/tmp/a")
	m := map[naming.Resource]policy.Policy{file: policy.Default()}
	w := toWirePolicyMap(m)
	back, err := w.toDomain()
	require.NoError(t, err)
	require.Equal(t, m, back)
}

func TestWireDestinationRoundTripNode(t *testing.T) {
	d := consent.Node("n1")
	back, err := toWireDestination(d).toDomain()
	require.NoError(t, err)
	require.Equal(t, d, back)
}

func TestWireDestinationRoundTripResourceWithParent(t *testing.T) {
	parent := consent.Node("n1")
	res := naming.NewLocalized("n1", naming.NewFile("/tmp/a"))
	d := consent.ForResource(res, &parent)
	back, err := toWireDestination(d).toDomain()
	require.NoError(t, err)
	require.Equal(t, d, back)
}

func TestWireDestinationRejectsUnknownKind(t *testing.T) {
	_, err := wireDestination{Kind: "bogus"}.toDomain()
	require.Error(t, err)
}
