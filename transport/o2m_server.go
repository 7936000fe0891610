package transport

import (
	"context"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/trace2e/t2ecore/compliance"
	"github.com/trace2e/t2ecore/consent"
	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/policy"
	"github.com/trace2e/t2ecore/provenance"
)

// O2MServer exposes the compliance, consent, and provenance engines to an
// operator tool, per spec §6's O2M wire surface.
type O2MServer struct {
	compliance *compliance.Engine
	consent    *consent.Service
	provenance *provenance.Engine
	log        *logrus.Entry
}

// NewO2MServer creates an O2MServer.
func NewO2MServer(complianceEngine *compliance.Engine, consentSvc *consent.Service, provenanceEngine *provenance.Engine, log *logrus.Entry) *O2MServer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &O2MServer{compliance: complianceEngine, consent: consentSvc, provenance: provenanceEngine, log: log.WithField("component", "o2m_server")}
}

func (s *O2MServer) getPolicies(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*getPoliciesRequest)
	resources := make([]naming.Resource, 0, len(r.Resources))
	for _, rs := range r.Resources {
		res, err := naming.Parse(rs)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return &getPoliciesResponse{Policies: toWirePolicyMap(s.compliance.GetPolicies(resources))}, nil
}

func (s *O2MServer) setPolicy(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*setPolicyRequest)
	resource, err := naming.Parse(r.Resource)
	if err != nil {
		return nil, err
	}
	if err := s.compliance.SetPolicy(resource, r.Policy.toDomain()); err != nil {
		return nil, err
	}
	return &ackResponse{}, nil
}

func (s *O2MServer) setConfidentiality(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*setConfidentialityRequest)
	resource, err := naming.Parse(r.Resource)
	if err != nil {
		return nil, err
	}
	if err := s.compliance.SetConfidentiality(resource, policy.Confidentiality(r.Confidentiality)); err != nil {
		return nil, err
	}
	return &ackResponse{}, nil
}

func (s *O2MServer) setIntegrity(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*setIntegrityRequest)
	resource, err := naming.Parse(r.Resource)
	if err != nil {
		return nil, err
	}
	if err := s.compliance.SetIntegrity(resource, r.Integrity); err != nil {
		return nil, err
	}
	return &ackResponse{}, nil
}

// setDeleted maps to compliance.SetDeleted, the NotDeleted->Pending
// transition (spec §4.4 "deletion is requested, not immediate").
func (s *O2MServer) setDeleted(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*setDeletedRequest)
	resource, err := naming.Parse(r.Resource)
	if err != nil {
		return nil, err
	}
	s.compliance.SetDeleted(resource)
	return &ackResponse{}, nil
}

func (s *O2MServer) setConsentDecision(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*setConsentDecisionRequest)
	source, err := naming.Parse(r.Source)
	if err != nil {
		return nil, err
	}
	destination, err := r.Destination.toDomain()
	if err != nil {
		return nil, err
	}
	s.consent.SetConsent(source, destination, r.Decision)
	return &ackResponse{}, nil
}

func (s *O2MServer) getReferences(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*getReferencesRequest)
	resource, err := naming.Parse(r.Resource)
	if err != nil {
		return nil, err
	}
	return &getReferencesResponse{References: toWireReferences(s.provenance.GetReferences(resource))}, nil
}

// enforceConsent streams every consent request raised for resource's
// ownership to the operator, who decides each via set_consent_decision
// (spec §6 "enforce_consent (streams consent notifications back)").
func (s *O2MServer) enforceConsent(ctx context.Context, req interface{}, send func(interface{}) error) error {
	r := req.(*enforceConsentRequest)
	resource, err := naming.Parse(r.Resource)
	if err != nil {
		return err
	}
	notifications := s.consent.TakeResourceOwnership(resource)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case destination, ok := <-notifications:
			if !ok {
				return nil
			}
			if err := send(&consentNotification{Destination: toWireDestination(destination)}); err != nil {
				return err
			}
		}
	}
}

// ServiceDesc returns the grpc.ServiceDesc registering the O2M surface
// (spec §6): get_policies, set_policy, set_confidentiality,
// set_integrity, set_deleted, set_consent_decision, get_references as
// unary RPCs, plus enforce_consent as a server-streaming RPC.
func (s *O2MServer) ServiceDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: "trace2e.O2M",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "GetPolicies", Handler: jsonUnaryHandler(func() interface{} { return new(getPoliciesRequest) }, s.getPolicies)},
			{MethodName: "SetPolicy", Handler: jsonUnaryHandler(func() interface{} { return new(setPolicyRequest) }, s.setPolicy)},
			{MethodName: "SetConfidentiality", Handler: jsonUnaryHandler(func() interface{} { return new(setConfidentialityRequest) }, s.setConfidentiality)},
			{MethodName: "SetIntegrity", Handler: jsonUnaryHandler(func() interface{} { return new(setIntegrityRequest) }, s.setIntegrity)},
			{MethodName: "SetDeleted", Handler: jsonUnaryHandler(func() interface{} { return new(setDeletedRequest) }, s.setDeleted)},
			{MethodName: "SetConsentDecision", Handler: jsonUnaryHandler(func() interface{} { return new(setConsentDecisionRequest) }, s.setConsentDecision)},
			{MethodName: "GetReferences", Handler: jsonUnaryHandler(func() interface{} { return new(getReferencesRequest) }, s.getReferences)},
		},
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "EnforceConsent",
				Handler:       jsonServerStreamHandler(func() interface{} { return new(enforceConsentRequest) }, s.enforceConsent),
				ServerStreams: true,
			},
		},
		Metadata: "trace2e/o2m.proto",
	}
}
