// Package p2m is the per-request state machine from spec §4.5: it
// composes the Sequencer, Provenance, and Compliance engines plus the
// cross-node M2M client to grant or deny an I/O request, in either Pull
// or Push propagation mode (spec §6 Configuration, §9 "Push vs Pull").
package p2m

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/trace2e/t2ecore/compliance"
	"github.com/trace2e/t2ecore/keyedmap"
	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/policy"
	"github.com/trace2e/t2ecore/provenance"
	"github.com/trace2e/t2ecore/sequencer/waitqueue"
	"github.com/trace2e/t2ecore/t2eerrors"
)

// Mode selects the propagation strategy (spec §9).
type Mode uint8

const (
	// Pull fetches remote provenance/policies at evaluation time.
	Pull Mode = iota
	// Push propagates them at report time instead.
	Push
)

// IOFlow selects which side of the enrolled (process, peer) pair is the
// source vs. destination for IoRequest (spec §6 "flow ∈ {Input, Output,
// None}").
type IOFlow uint8

const (
	FlowNone IOFlow = iota
	FlowInput
	FlowOutput
)

type flowRecord struct {
	source      naming.Resource
	destination naming.Resource
}

// Orchestrator is the P2M state machine for one node.
type Orchestrator struct {
	selfNodeID string
	mode       Mode

	resources  *resourceMap
	sequencer  *waitqueue.Queue
	provenance *provenance.Engine
	compliance *compliance.Engine
	m2m        M2MClient
	flows      *keyedmap.Map[GrantID, flowRecord]

	log *logrus.Entry
}

// Config bundles the Orchestrator's dependencies.
type Config struct {
	SelfNodeID string
	Mode       Mode
	Sequencer  *waitqueue.Queue
	Provenance *provenance.Engine
	Compliance *compliance.Engine
	M2M        M2MClient
}

// New creates an Orchestrator.
func New(cfg Config, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		selfNodeID: cfg.SelfNodeID,
		mode:       cfg.Mode,
		resources:  newResourceMap(),
		sequencer:  cfg.Sequencer,
		provenance: cfg.Provenance,
		compliance: cfg.Compliance,
		m2m:        cfg.M2M,
		flows:      keyedmap.New[GrantID, flowRecord](),
		log:        log.WithField("component", "p2m"),
	}
}

// LocalEnroll records (pid,fd) -> (Process(pid,...), File(path)).
// Re-enrolling the same (pid,fd) discards the prior mapping (spec §4.5
// "Idempotent overwrite").
func (o *Orchestrator) LocalEnroll(pid, fd int32, process naming.Resource, path string) {
	o.resources.enroll(pid, fd, process, naming.NewFile(path))
}

// RemoteEnroll records (pid,fd) -> (Process(pid,...), Stream(local,peer)).
func (o *Orchestrator) RemoteEnroll(pid, fd int32, process naming.Resource, localSocket, peerSocket string) {
	o.resources.enroll(pid, fd, process, naming.NewStream(localSocket, peerSocket))
}

// Grant is the successful result of IoRequest.
type Grant struct {
	ID GrantID
}

// IoRequest evaluates an I/O request per spec §4.5 steps 1-9. FlowNone is
// not a grantable direction (spec §6 "Unsupported flow types return an
// argument error") and is rejected before any reservation is attempted.
func (o *Orchestrator) IoRequest(ctx context.Context, pid, fd int32, flow IOFlow) (Grant, error) {
	if flow != FlowInput && flow != FlowOutput {
		return Grant{}, t2eerrors.InvalidResourceFormat("unsupported flow %d", flow)
	}

	entry, err := o.resources.lookup(pid, fd)
	if err != nil {
		return Grant{}, err
	}

	grantID, err := NewGrantID()
	if err != nil {
		return Grant{}, err
	}

	source, destination := entry.peer, entry.process
	if flow == FlowOutput {
		source, destination = entry.process, entry.peer
	}

	if err := o.sequencer.ReserveFlow(ctx, source, destination); err != nil {
		return Grant{}, err
	}

	if err := o.evaluate(ctx, source, destination); err != nil {
		o.sequencer.ReleaseFlow(source, destination) // best-effort compensation, spec §4.5 step 9
		return Grant{}, err
	}

	o.flows.Store(grantID, flowRecord{source: source, destination: destination})
	return Grant{ID: grantID}, nil
}

func (o *Orchestrator) evaluate(ctx context.Context, source, destination naming.Resource) error {
	localizedDestination, destinationPolicy, err := o.destinationCompliance(ctx, source, destination)
	if err != nil {
		return err
	}

	if o.mode == Push {
		refs := o.provenance.GetReferences(source)
		return o.compliance.CheckCompliance(ctx, refs, localizedDestination, destinationPolicy)
	}
	return o.evaluatePull(ctx, source, localizedDestination, destinationPolicy)
}

// destinationCompliance resolves the destination's policy: remote (via
// M2M, Pull mode only, when destination is a stream whose peer side is
// remote) or local, per spec §4.5 step 5.
func (o *Orchestrator) destinationCompliance(ctx context.Context, source, destination naming.Resource) (naming.LocalizedResource, *policy.Policy, error) {
	if o.mode == Pull && destination.IsStream() {
		peerNodeID, remoteView, ok := o.remotePeerView(destination)
		if ok {
			remotePolicy, err := o.m2m.GetDestinationCompliance(ctx, source, naming.NewLocalized(peerNodeID, remoteView))
			if err != nil {
				return naming.LocalizedResource{}, nil, t2eerrors.TransportFailedToContactRemote(peerNodeID, err)
			}
			return naming.NewLocalized(peerNodeID, remoteView), &remotePolicy, nil
		}
	}
	return naming.NewLocalized(o.selfNodeID, destination), nil, nil
}

// remotePeerView interprets the peer side of a Stream resource: the
// stream as seen from the other end, with local/peer sockets swapped and
// node_id taken from the peer IP (spec §4.5 step 5).
func (o *Orchestrator) remotePeerView(stream naming.Resource) (peerNodeID string, remoteView naming.Resource, ok bool) {
	if !stream.IsStream() {
		return "", naming.Resource{}, false
	}
	host, _, err := splitHost(stream.PeerSocket)
	if err != nil || host == o.selfNodeID {
		return "", naming.Resource{}, false
	}
	return host, naming.NewStream(stream.PeerSocket, stream.LocalSocket), true
}

// evaluatePull implements spec §4.5 steps 6-8 for Pull mode: fetch the
// source's transitive ancestry, resolve every named resource's policy
// (locally for the self partition, via M2M for each remote partition,
// concurrently), then evaluate.
func (o *Orchestrator) evaluatePull(ctx context.Context, source naming.Resource, destination naming.LocalizedResource, destinationPolicy *policy.Policy) error {
	refs := o.provenance.GetReferences(source)
	sourcePolicies, err := o.resolveSourcePolicies(ctx, refs)
	if err != nil {
		return err
	}
	return o.compliance.EvalComplianceWithPolicies(ctx, sourcePolicies, destination, destinationPolicy)
}

func (o *Orchestrator) localPoliciesOnly(refs provenance.References) map[naming.Resource]policy.Policy {
	local, ok := refs[o.selfNodeID]
	if !ok {
		return nil
	}
	resources := make([]naming.Resource, 0, len(local))
	for r := range local {
		resources = append(resources, r)
	}
	return o.compliance.GetPolicies(resources)
}

// IoReport finalizes a previously granted flow (spec §4.5 IoReport).
func (o *Orchestrator) IoReport(ctx context.Context, pid, fd int32, grantID GrantID, result bool) error {
	flow, ok := o.flows.Load(grantID)
	if !ok {
		return t2eerrors.NotFoundFlow(grantID.String())
	}
	o.flows.Delete(grantID)

	if flow.destination.IsStream() {
		if err := o.reportToRemote(ctx, flow); err != nil {
			return err
		}
	} else {
		o.provenance.UpdateProvenance(flow.source, flow.destination)
	}

	o.sequencer.ReleaseFlow(flow.source, flow.destination)
	return nil
}

func (o *Orchestrator) reportToRemote(ctx context.Context, flow flowRecord) error {
	peerNodeID, remoteView, ok := o.remotePeerView(flow.destination)
	if !ok {
		return t2eerrors.InternalTrace2eError("stream destination %s has no resolvable remote peer", flow.destination)
	}
	refs := o.provenance.GetReferences(flow.source)
	localized := naming.NewLocalized(peerNodeID, remoteView)
	if err := o.m2m.UpdateProvenance(ctx, refs, localized); err != nil {
		return t2eerrors.TransportFailedToContactRemote(peerNodeID, err)
	}
	if policies := o.localPoliciesOnly(refs); len(policies) > 0 {
		// Best-effort cache warm for the peer; failures here are not
		// fatal to the report (spec §4.5 step 2: "optionally").
		_ = o.m2m.PushSourcePolicies(ctx, peerNodeID, policies)
	}
	return nil
}
