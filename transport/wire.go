// Package transport is the gRPC collaborator named by spec §6: the M2M
// peer-to-peer surface (a concrete github.com/trace2e/t2ecore/p2m.M2MClient
// implementation plus its server side), the P2M surface exposed to the
// interception library, and the O2M operator surface over compliance,
// consent, and provenance.
//
// Per spec §1's explicit scope note, the wire codec here is hand-written —
// request/response types are plain Go structs marshaled with
// encoding/json and carried inside a google.golang.org/protobuf
// wrapperspb.BytesValue envelope, not full protoc-gen-go output. This
// keeps every RPC a real google.golang.org/grpc call over a real
// google.golang.org/protobuf message type without a code-generation step
// (see DESIGN.md for why: no .proto toolchain is available in this
// exercise, and wrapperspb.BytesValue is the one pack-grounded message
// type simple enough to hand-wire correctly without one).
package transport

import (
	"encoding/json"

	"github.com/trace2e/t2ecore/consent"
	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/policy"
	"github.com/trace2e/t2ecore/provenance"
	"github.com/trace2e/t2ecore/t2eerrors"
)

// wirePolicy is the spec §6 wire-level Policy: confidentiality as an enum,
// integrity as u32, and the tri-state Deletion collapsed to a bool.
type wirePolicy struct {
	Confidentiality uint8  `json:"confidentiality"`
	Integrity       uint32 `json:"integrity"`
	Deleted         bool   `json:"deleted"`
	Consent         bool   `json:"consent"`
}

func toWirePolicy(p policy.Policy) wirePolicy {
	return wirePolicy{
		Confidentiality: uint8(p.Confidentiality),
		Integrity:       p.Integrity,
		Deleted:         p.WireDeleted(),
		Consent:         p.Consent,
	}
}

func (w wirePolicy) toDomain() policy.Policy {
	return policy.Policy{
		Confidentiality: policy.Confidentiality(w.Confidentiality),
		Integrity:       w.Integrity,
		Deleted:         policy.FromWireDeleted(w.Deleted),
		Consent:         w.Consent,
	}
}

// wireReferences is provenance.References in its wire form: node_id to a
// list of resource textual forms, per spec §6
// "source_prov: [(node_id, [resource…])…]".
type wireReferences map[string][]string

func toWireReferences(r provenance.References) wireReferences {
	out := make(wireReferences, len(r))
	for node, set := range r {
		list := make([]string, 0, len(set))
		for res := range set {
			list = append(list, res.String())
		}
		out[node] = list
	}
	return out
}

func (w wireReferences) toDomain() (provenance.References, error) {
	out := make(provenance.References, len(w))
	for node, list := range w {
		set := make(map[naming.Resource]struct{}, len(list))
		for _, s := range list {
			r, err := naming.Parse(s)
			if err != nil {
				return nil, err
			}
			set[r] = struct{}{}
		}
		out[node] = set
	}
	return out, nil
}

// wirePolicyMap is map<Resource,Policy> on the wire, per spec §6
// "policies: [(resource, policy)…]" — a JSON object keyed by the
// resource's textual form.
type wirePolicyMap map[string]wirePolicy

func toWirePolicyMap(m map[naming.Resource]policy.Policy) wirePolicyMap {
	out := make(wirePolicyMap, len(m))
	for r, p := range m {
		out[r.String()] = toWirePolicy(p)
	}
	return out
}

func (w wirePolicyMap) toDomain() (map[naming.Resource]policy.Policy, error) {
	out := make(map[naming.Resource]policy.Policy, len(w))
	for s, wp := range w {
		r, err := naming.Parse(s)
		if err != nil {
			return nil, err
		}
		out[r] = wp.toDomain()
	}
	return out, nil
}

// wireDestination encodes the consent.Destination hierarchy (spec §4.4's
// algebraic Node|Resource{resource,parent} type) for the O2M
// enforce_consent/set_consent_decision surface.
type wireDestination struct {
	Kind     string           `json:"kind"` // "node" | "resource"
	NodeID   string           `json:"node_id,omitempty"`
	Resource string           `json:"resource,omitempty"`
	Parent   *wireDestination `json:"parent,omitempty"`
}

func toWireDestination(d consent.Destination) wireDestination {
	w := wireDestination{}
	if d.Kind == consent.DestNode {
		w.Kind = "node"
		w.NodeID = d.NodeID
	} else {
		w.Kind = "resource"
		w.Resource = d.Resource.String()
	}
	if d.Parent != nil {
		parent := toWireDestination(*d.Parent)
		w.Parent = &parent
	}
	return w
}

func (w wireDestination) toDomain() (consent.Destination, error) {
	var parent *consent.Destination
	if w.Parent != nil {
		p, err := w.Parent.toDomain()
		if err != nil {
			return consent.Destination{}, err
		}
		parent = &p
	}
	switch w.Kind {
	case "node":
		d := consent.Node(w.NodeID)
		d.Parent = parent
		return d, nil
	case "resource":
		r, err := naming.ParseLocalized(w.Resource)
		if err != nil {
			return consent.Destination{}, err
		}
		return consent.ForResource(r, parent), nil
	default:
		return consent.Destination{}, t2eerrors.InvalidResourceFormat("unrecognized destination kind %q", w.Kind)
	}
}

func marshalJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, t2eerrors.InternalTrace2eError("marshal wire message: %v", err)
	}
	return b, nil
}

func unmarshalJSON(b []byte, v interface{}) error {
	if err := json.Unmarshal(b, v); err != nil {
		return t2eerrors.InvalidResourceFormat("unmarshal wire message: %v", err)
	}
	return nil
}
