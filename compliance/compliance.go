// Package compliance is the policy store plus multi-dimensional flow
// evaluator from spec §4.3: confidentiality, integrity, deletion, and
// (via the consent sub-service) consent. Policies live for the process
// lifetime in a keyedmap.Map; EvalCompliance never changes a stored
// policy: it reads policies (inserting the default for an absent resource,
// as GetPolicy does) and, for consenting sources, calls out to consent.
package compliance

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/trace2e/t2ecore/consent"
	"github.com/trace2e/t2ecore/keyedmap"
	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/policy"
	"github.com/trace2e/t2ecore/provenance"
	"github.com/trace2e/t2ecore/t2eerrors"
)

// Engine is the compliance policy store and flow evaluator. Its
// consentTimeout bounds how long EvalCompliance waits for a single
// consent decision (spec §4.3 rule 4: "timeouts are violations too").
// 0 means unbounded, matching consent.Service.RequestConsent's own
// zero-means-unbounded convention.
type Engine struct {
	selfNodeID string
	policies   *keyedmap.Map[naming.Resource, policy.Policy]
	consentSvc *consent.Service

	consentTimeout time.Duration

	// confidentialityCache mirrors remote policies fetched via M2M, keyed
	// by the peer node_id and then by resource, so a later local
	// evaluation naming a remote source in its lineage can consult a
	// warm cache instead of always round-tripping (spec §4.3
	// "Confidentiality fallback cache"; cache misses are tolerated, the
	// per-request M2M fetch in the P2M orchestrator fills them on demand).
	confidentialityCache *lru.Cache[string, *lru.Cache[naming.Resource, policy.Policy]]
	peerCacheSize        int

	log *logrus.Entry
}

// Config bundles the Engine's tunables.
type Config struct {
	SelfNodeID                  string
	ConsentTimeout               time.Duration
	ConfidentialityCacheSize     int // per-peer-node LRU capacity; default 4096
	ConfidentialityCachePeers    int // number of distinct peer nodes cached; default 64
}

// New creates a compliance Engine.
func New(cfg Config, consentSvc *consent.Service, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	peerCacheSize := cfg.ConfidentialityCacheSize
	if peerCacheSize <= 0 {
		peerCacheSize = 4096
	}
	peers := cfg.ConfidentialityCachePeers
	if peers <= 0 {
		peers = 64
	}
	peerCache, err := lru.New[string, *lru.Cache[naming.Resource, policy.Policy]](peers)
	if err != nil {
		// Only returns an error for a non-positive size, which the
		// defaulting above rules out.
		panic(err)
	}
	return &Engine{
		selfNodeID:           cfg.SelfNodeID,
		policies:             keyedmap.New[naming.Resource, policy.Policy](),
		consentSvc:           consentSvc,
		consentTimeout:       cfg.ConsentTimeout,
		confidentialityCache: peerCache,
		peerCacheSize:        peerCacheSize,
		log:                  log.WithField("component", "compliance"),
	}
}

// GetPolicy returns resource's current policy, inserting the default if
// absent (spec §4.3). Stream resources never carry a policy (spec §3);
// callers must not call GetPolicy on a Stream.
func (e *Engine) GetPolicy(resource naming.Resource) policy.Policy {
	p, _ := e.policies.Update(resource, func(current policy.Policy, ok bool) (policy.Policy, bool) {
		if ok {
			return current, true
		}
		return policy.Default(), true
	})
	return p
}

// GetPolicies returns the current policies for every resource in
// resources, inserting defaults for any absent (non-stream) resource.
func (e *Engine) GetPolicies(resources []naming.Resource) map[naming.Resource]policy.Policy {
	out := make(map[naming.Resource]policy.Policy, len(resources))
	for _, r := range resources {
		out[r] = e.GetPolicy(r)
	}
	return out
}

// SetPolicy replaces resource's policy wholesale. Rejected with
// PolicyNotUpdated if resource is currently Pending or Deleted (spec §4.3
// deletion guard, and spec §3's "once deleted leaves NotDeleted, no field
// may change" invariant).
func (e *Engine) SetPolicy(resource naming.Resource, newPolicy policy.Policy) error {
	return e.guardedUpdate(resource, func(policy.Policy) policy.Policy { return newPolicy })
}

// SetConfidentiality updates only resource's confidentiality field.
func (e *Engine) SetConfidentiality(resource naming.Resource, c policy.Confidentiality) error {
	return e.guardedUpdate(resource, func(p policy.Policy) policy.Policy {
		p.Confidentiality = c
		return p
	})
}

// SetIntegrity updates only resource's integrity field.
func (e *Engine) SetIntegrity(resource naming.Resource, integrity uint32) error {
	return e.guardedUpdate(resource, func(p policy.Policy) policy.Policy {
		p.Integrity = integrity
		return p
	})
}

// EnforceConsent updates only resource's consent field.
func (e *Engine) EnforceConsent(resource naming.Resource, consentRequired bool) error {
	return e.guardedUpdate(resource, func(p policy.Policy) policy.Policy {
		p.Consent = consentRequired
		return p
	})
}

func (e *Engine) guardedUpdate(resource naming.Resource, mutate func(policy.Policy) policy.Policy) error {
	var rejected error
	e.policies.Update(resource, func(current policy.Policy, ok bool) (policy.Policy, bool) {
		if !ok {
			current = policy.Default()
		}
		if current.Locked() {
			rejected = t2eerrors.PolicyNotUpdated(resource)
			return current, true
		}
		return mutate(current), true
	})
	return rejected
}

// SetDeleted transitions resource's deletion state from NotDeleted to
// Pending; a no-op if it is already Pending or Deleted (spec §4.3).
func (e *Engine) SetDeleted(resource naming.Resource) {
	e.policies.Update(resource, func(current policy.Policy, ok bool) (policy.Policy, bool) {
		if !ok {
			current = policy.Default()
		}
		if current.Deleted == policy.NotDeleted {
			current.Deleted = policy.Pending
		}
		return current, true
	})
}

// EnforceDeletion transitions resource from Pending to Deleted. Unlike
// SetPolicy/Set*, this is the one permitted mutation once deletion has
// started (spec §3: "Pending->Deleted only via enforcement").
func (e *Engine) EnforceDeletion(resource naming.Resource) {
	e.policies.Update(resource, func(current policy.Policy, ok bool) (policy.Policy, bool) {
		if ok && current.Deleted == policy.Pending {
			current.Deleted = policy.Deleted
		}
		return current, ok
	})
}

// CacheRemotePolicy records a policy fetched via M2M for a resource owned
// by peerNodeID, for later confidentiality-fallback lookups.
func (e *Engine) CacheRemotePolicy(peerNodeID string, resource naming.Resource, p policy.Policy) {
	peerCache, ok := e.confidentialityCache.Get(peerNodeID)
	if !ok {
		var err error
		peerCache, err = lru.New[naming.Resource, policy.Policy](e.peerCacheSize)
		if err != nil {
			return
		}
		e.confidentialityCache.Add(peerNodeID, peerCache)
	}
	peerCache.Add(resource, p)
}

// CachedRemotePolicy returns a previously cached remote policy, if any.
func (e *Engine) CachedRemotePolicy(peerNodeID string, resource naming.Resource) (policy.Policy, bool) {
	peerCache, ok := e.confidentialityCache.Get(peerNodeID)
	if !ok {
		return policy.Policy{}, false
	}
	return peerCache.Get(resource)
}

// EvictRemotePolicy drops a cached remote policy, used when an M2M
// broadcast-deletion hint arrives (spec §9 Open Questions).
func (e *Engine) EvictRemotePolicy(peerNodeID string, resource naming.Resource) {
	if peerCache, ok := e.confidentialityCache.Get(peerNodeID); ok {
		peerCache.Remove(resource)
	}
}

// EvalCompliance evaluates whether sources may flow into destination,
// per the four-rule algorithm of spec §4.3, looking each source's policy
// up in the local store. Use EvalComplianceWithPolicies when some sources
// are owned by a remote node (the P2M orchestrator's Pull-mode path,
// spec §4.5 step 8, where remote source policies come from M2M fetches,
// not the local store).
func (e *Engine) EvalCompliance(ctx context.Context, sources []naming.Resource, destination naming.LocalizedResource, destinationPolicy *policy.Policy) error {
	return e.EvalComplianceWithPolicies(ctx, e.GetPolicies(sources), destination, destinationPolicy)
}

// EvalComplianceWithPolicies is EvalCompliance given already-resolved
// source policies (so callers can mix local lookups with remote M2M
// fetches before evaluating).
func (e *Engine) EvalComplianceWithPolicies(ctx context.Context, sourcePolicies map[naming.Resource]policy.Policy, destination naming.LocalizedResource, destinationPolicy *policy.Policy) error {
	dp, err := e.resolveDestinationPolicy(destination, destinationPolicy)
	if err != nil {
		return err
	}

	var consenting []naming.Resource
	if dp.Deleted != policy.NotDeleted {
		return t2eerrors.DirectPolicyViolation("destination deletion in progress or complete")
	}
	for src, sp := range sourcePolicies {
		if sp.Deleted != policy.NotDeleted {
			return t2eerrors.DirectPolicyViolation("source deletion in progress or complete")
		}
		if sp.Integrity < dp.Integrity {
			return t2eerrors.DirectPolicyViolation("integrity would flow upward")
		}
		if sp.Confidentiality == policy.Secret && dp.Confidentiality == policy.Public {
			return t2eerrors.DirectPolicyViolation("secret source cannot flow to a public destination")
		}
		if sp.Consent {
			consenting = append(consenting, src)
		}
	}

	if len(consenting) == 0 {
		return nil
	}
	group, gctx := errgroup.WithContext(ctx)
	for _, src := range consenting {
		src := src
		group.Go(func() error {
			return e.checkConsent(gctx, src, destination)
		})
	}
	return group.Wait()
}

// CheckCompliance is the Push-mode variant's one-shot evaluation (spec
// §4.5 "Push mode variant"): unlike EvalComplianceWithPolicies's Pull-mode
// caller, it never round-trips over M2M to resolve a remote source's
// policy. It assumes any remote-owned resource in refs has already had its
// policy warmed into the confidentiality fallback cache by an earlier
// PushSourcePolicies call (spec §4.5 IoReport step 2), and its provenance
// already merged locally by an earlier UpdateProvenance push — that is
// what makes Push-mode evaluation local (spec §9 "Push vs Pull").
func (e *Engine) CheckCompliance(ctx context.Context, refs provenance.References, destination naming.LocalizedResource, destinationPolicy *policy.Policy) error {
	sourcePolicies := make(map[naming.Resource]policy.Policy)
	for node, set := range refs {
		for resource := range set {
			if node == e.selfNodeID {
				sourcePolicies[resource] = e.GetPolicy(resource)
				continue
			}
			if p, ok := e.CachedRemotePolicy(node, resource); ok {
				sourcePolicies[resource] = p
			} else {
				sourcePolicies[resource] = policy.Default()
			}
		}
	}
	return e.EvalComplianceWithPolicies(ctx, sourcePolicies, destination, destinationPolicy)
}

func (e *Engine) resolveDestinationPolicy(destination naming.LocalizedResource, destinationPolicy *policy.Policy) (policy.Policy, error) {
	if destination.NodeID != e.selfNodeID {
		if destinationPolicy == nil {
			return policy.Policy{}, t2eerrors.DestinationPolicyNotFound()
		}
		return *destinationPolicy, nil
	}
	if destinationPolicy != nil {
		return *destinationPolicy, nil
	}
	return e.GetPolicy(destination.Resource), nil
}

func (e *Engine) checkConsent(ctx context.Context, source naming.Resource, destination naming.LocalizedResource) error {
	dest := consent.ForResource(destination, nil)
	decided, err := e.consentSvc.RequestConsent(ctx, source, dest, e.consentTimeout)
	if err != nil {
		return t2eerrors.DirectPolicyViolation("consent request failed: " + err.Error())
	}
	if !decided {
		return t2eerrors.DirectPolicyViolation("consent denied for " + source.String())
	}
	return nil
}
