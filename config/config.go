// Package config loads a node's YAML configuration file (spec §6
// Configuration): its node_id, propagation mode, and the tunables each
// collaborator package exposes (sequencer retry budget, consent timeout,
// M2M dial timeout, compliance confidentiality cache size).
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/trace2e/t2ecore/p2m"
	"github.com/trace2e/t2ecore/t2eerrors"
)

// Defaults, named in spec §6's sample configuration.
const (
	DefaultMaxRetries               = 0
	DefaultConsentTimeoutMS         = 0
	DefaultM2MDialTimeoutMS         = 2000
	DefaultConfidentialityCacheSize = 4096
)

// Node is the root YAML document shape.
type Node struct {
	NodeID     string           `yaml:"node_id"`
	Mode       string           `yaml:"mode"` // "pull" | "push"
	Sequencer  SequencerConfig  `yaml:"sequencer"`
	Consent    ConsentConfig    `yaml:"consent"`
	M2M        M2MConfig        `yaml:"m2m"`
	Compliance ComplianceConfig `yaml:"compliance"`
}

// SequencerConfig tunes the waiting-queue retry budget (spec §4.1).
type SequencerConfig struct {
	MaxRetries int `yaml:"max_retries"`
}

// ConsentConfig tunes how long an owner is given to decide (spec §4.4).
type ConsentConfig struct {
	TimeoutMS int `yaml:"timeout_ms"`
}

// M2MConfig tunes peer-connection behavior (spec §6).
type M2MConfig struct {
	DialTimeoutMS int `yaml:"dial_timeout_ms"`
}

// ComplianceConfig tunes the confidentiality fallback cache (spec §4.3).
type ComplianceConfig struct {
	ConfidentialityCacheSize int `yaml:"confidentiality_cache_size"`
}

// Load reads and parses the YAML node configuration at path, applying
// defaults to any zero-valued tunable.
func Load(path string) (Node, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Node{}, t2eerrors.InternalTrace2eError("read config %q: %v", path, err)
	}
	var n Node
	if err := yaml.Unmarshal(raw, &n); err != nil {
		return Node{}, t2eerrors.InvalidResourceFormat("parse config %q: %v", path, err)
	}
	n.applyDefaults()
	return n, n.Validate()
}

func (n *Node) applyDefaults() {
	if n.Sequencer.MaxRetries == 0 {
		n.Sequencer.MaxRetries = DefaultMaxRetries
	}
	if n.Consent.TimeoutMS == 0 {
		n.Consent.TimeoutMS = DefaultConsentTimeoutMS
	}
	if n.M2M.DialTimeoutMS == 0 {
		n.M2M.DialTimeoutMS = DefaultM2MDialTimeoutMS
	}
	if n.Compliance.ConfidentialityCacheSize == 0 {
		n.Compliance.ConfidentialityCacheSize = DefaultConfidentialityCacheSize
	}
}

// Validate rejects a config missing its node_id or naming an unrecognized
// propagation mode.
func (n Node) Validate() error {
	if n.NodeID == "" {
		return t2eerrors.InvalidResourceFormat("config: node_id is required")
	}
	switch n.Mode {
	case "pull", "push":
	default:
		return t2eerrors.InvalidResourceFormat("config: mode must be \"pull\" or \"push\", got %q", n.Mode)
	}
	return nil
}

// P2MMode translates the YAML mode string to p2m.Mode.
func (n Node) P2MMode() p2m.Mode {
	if n.Mode == "push" {
		return p2m.Push
	}
	return p2m.Pull
}

// ConsentTimeout converts ConsentConfig.TimeoutMS to a time.Duration (0
// means unbounded, matching consent.Service.RequestConsent's convention).
func (n Node) ConsentTimeout() time.Duration {
	return time.Duration(n.Consent.TimeoutMS) * time.Millisecond
}

// M2MDialTimeout converts M2MConfig.DialTimeoutMS to a time.Duration.
func (n Node) M2MDialTimeout() time.Duration {
	return time.Duration(n.M2M.DialTimeoutMS) * time.Millisecond
}
