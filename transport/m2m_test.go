package transport

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/trace2e/t2ecore/compliance"
	"github.com/trace2e/t2ecore/consent"
	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/policy"
	"github.com/trace2e/t2ecore/provenance"
)

// bufconnDialer is a PeerDialer backed by a single in-memory bufconn
// listener, ignoring peerNodeID — enough to exercise the wire round trip
// without a real network, per gravitational-teleport's bufconn test habit.
type bufconnDialer struct {
	lis *bufconn.Listener
}

func (d *bufconnDialer) Dial(ctx context.Context, peerNodeID string) (*grpc.ClientConn, error) {
	return grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return d.lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
}

func startM2MServer(t *testing.T, complianceEngine *compliance.Engine, provenanceEngine *provenance.Engine) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	srv.RegisterService(NewM2MServer(complianceEngine, provenanceEngine, nil).ServiceDesc(), nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis
}

func TestM2MClientServerGetDestinationCompliance(t *testing.T) {
	file := naming.NewFile("/tmp/dest")
	comp := compliance.New(compliance.Config{SelfNodeID: "n1"}, consent.New(), nil)
	require.NoError(t, comp.SetConfidentiality(file, policy.Secret))
	prov := provenance.New("n1")

	lis := startM2MServer(t, comp, prov)
	client := NewGRPCM2MClient("peer", &bufconnDialer{lis: lis})

	got, err := client.GetDestinationCompliance(context.Background(), naming.NewFile("/tmp/src"), naming.NewLocalized("n1", file))
	require.NoError(t, err)
	require.Equal(t, policy.Secret, got.Confidentiality)
}

func TestM2MClientServerUpdateProvenanceAndGetSourceCompliance(t *testing.T) {
	file := naming.NewFile("/tmp/a")
	comp := compliance.New(compliance.Config{SelfNodeID: "n1"}, consent.New(), nil)
	require.NoError(t, comp.SetIntegrity(file, 4))
	prov := provenance.New("n1")

	lis := startM2MServer(t, comp, prov)
	client := NewGRPCM2MClient("peer", &bufconnDialer{lis: lis})

	dest := naming.NewFile("/tmp/b")
	refs := provenance.References{"n1": {file: {}}}
	require.NoError(t, client.UpdateProvenance(context.Background(), refs, naming.NewLocalized("n1", dest)))
	require.Equal(t, provenance.References{"n1": {file: {}, dest: {}}}, prov.GetReferences(dest))

	policies, err := client.GetSourceCompliance(context.Background(), "n1", []naming.Resource{file})
	require.NoError(t, err)
	require.Equal(t, uint32(4), policies[file].Integrity)
}

func TestM2MClientServerPushSourcePoliciesWarmsCache(t *testing.T) {
	comp := compliance.New(compliance.Config{SelfNodeID: "n1"}, consent.New(), nil)
	prov := provenance.New("n1")
	lis := startM2MServer(t, comp, prov)
	client := NewGRPCM2MClient("peer", &bufconnDialer{lis: lis})

	remoteFile := naming.NewFile("/remote/a")
	require.NoError(t, client.PushSourcePolicies(context.Background(), "peer", map[naming.Resource]policy.Policy{
		remoteFile: {Confidentiality: policy.Secret},
	}))

	cached, ok := comp.CachedRemotePolicy("peer", remoteFile)
	require.True(t, ok)
	require.Equal(t, policy.Secret, cached.Confidentiality)
}

func TestM2MClientServerBroadcastDeletionEvictsCache(t *testing.T) {
	comp := compliance.New(compliance.Config{SelfNodeID: "n1"}, consent.New(), nil)
	prov := provenance.New("n1")
	remoteFile := naming.NewFile("/remote/a")
	comp.CacheRemotePolicy("peer", remoteFile, policy.Policy{Confidentiality: policy.Secret})

	lis := startM2MServer(t, comp, prov)
	client := NewGRPCM2MClient("peer", &bufconnDialer{lis: lis})

	require.NoError(t, client.BroadcastDeletion(context.Background(), "peer", remoteFile))
	_, ok := comp.CachedRemotePolicy("peer", remoteFile)
	require.False(t, ok)
}
