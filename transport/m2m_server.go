package transport

import (
	"context"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/trace2e/t2ecore/compliance"
	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/provenance"
)

// M2MServer is the server side of the M2M surface, answering a peer
// node's requests against this node's own compliance/provenance state.
type M2MServer struct {
	compliance *compliance.Engine
	provenance *provenance.Engine
	log        *logrus.Entry
}

// NewM2MServer creates an M2MServer.
func NewM2MServer(complianceEngine *compliance.Engine, provenanceEngine *provenance.Engine, log *logrus.Entry) *M2MServer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &M2MServer{compliance: complianceEngine, provenance: provenanceEngine, log: log.WithField("component", "m2m_server")}
}

func (s *M2MServer) getDestinationCompliance(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*getDestinationComplianceRequest)
	destination, err := naming.ParseLocalized(r.Destination)
	if err != nil {
		return nil, err
	}
	return &getDestinationComplianceResponse{Policy: toWirePolicy(s.compliance.GetPolicy(destination.Resource))}, nil
}

func (s *M2MServer) getSourceCompliance(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*getSourceComplianceRequest)
	resources := make([]naming.Resource, 0, len(r.Resources))
	for _, rs := range r.Resources {
		res, err := naming.Parse(rs)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return &getSourceComplianceResponse{Policies: toWirePolicyMap(s.compliance.GetPolicies(resources))}, nil
}

func (s *M2MServer) updateProvenance(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*updateProvenanceRequest)
	sourceProv, err := r.SourceProv.toDomain()
	if err != nil {
		return nil, err
	}
	destination, err := naming.ParseLocalized(r.Destination)
	if err != nil {
		return nil, err
	}
	s.provenance.UpdateProvenanceRaw(sourceProv, destination.Resource)
	return &ackResponse{}, nil
}

func (s *M2MServer) pushSourcePolicies(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*pushSourcePoliciesRequest)
	policies, err := r.Policies.toDomain()
	if err != nil {
		return nil, err
	}
	for resource, p := range policies {
		s.compliance.CacheRemotePolicy(r.Peer, resource, p)
	}
	return &ackResponse{}, nil
}

// broadcastDeletion handles the m2m_broadcast_deletion hint (spec §9 Open
// Questions: treated as a hint, logged at Info, evicting the
// confidentiality fallback cache entry rather than mutating local policy).
func (s *M2MServer) broadcastDeletion(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*broadcastDeletionRequest)
	resource, err := naming.Parse(r.Resource)
	if err != nil {
		return nil, err
	}
	s.log.WithField("peer", r.Peer).WithField("resource", resource.String()).WithField("request_id", requestIDFromContext(ctx)).Info("received deletion broadcast hint, evicting cached policy")
	s.compliance.EvictRemotePolicy(r.Peer, resource)
	return &ackResponse{}, nil
}

// ServiceDesc returns the grpc.ServiceDesc registering this server's five
// M2M RPCs: the four of spec §6's M2M wire surface (destination
// compliance, source compliance, provenance update, broadcast deletion)
// plus the additive push_source_policies handler, mirroring what
// protoc-gen-go-grpc would emit.
func (s *M2MServer) ServiceDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: "trace2e.M2M",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "GetDestinationCompliance",
				Handler: jsonUnaryHandler(
					func() interface{} { return new(getDestinationComplianceRequest) },
					s.getDestinationCompliance,
				),
			},
			{
				MethodName: "GetSourceCompliance",
				Handler: jsonUnaryHandler(
					func() interface{} { return new(getSourceComplianceRequest) },
					s.getSourceCompliance,
				),
			},
			{
				MethodName: "UpdateProvenance",
				Handler: jsonUnaryHandler(
					func() interface{} { return new(updateProvenanceRequest) },
					s.updateProvenance,
				),
			},
			{
				MethodName: "PushSourcePolicies",
				Handler: jsonUnaryHandler(
					func() interface{} { return new(pushSourcePoliciesRequest) },
					s.pushSourcePolicies,
				),
			},
			{
				MethodName: "BroadcastDeletion",
				Handler: jsonUnaryHandler(
					func() interface{} { return new(broadcastDeletionRequest) },
					s.broadcastDeletion,
				),
			},
		},
		Metadata: "trace2e/m2m.proto",
	}
}
