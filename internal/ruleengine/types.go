// Package ruleengine is the algorithmic heart of the SDK: it drives
// feature and experiment evaluation by composing the hashing, bucket,
// condition, and prerequisite packages against a decoded feature map.
package ruleengine

import (
	"encoding/json"
	"fmt"

	"github.com/heimdall-sdk/heimdall/internal/bucket"
	"github.com/heimdall-sdk/heimdall/internal/condition"
	"github.com/heimdall-sdk/heimdall/internal/hashing"
	"github.com/heimdall-sdk/heimdall/internal/prerequisite"
)

// Feature is a named flag: a default value overridden, in order, by its
// rules.
type Feature struct {
	DefaultValue any    `json:"defaultValue"`
	Rules        []Rule `json:"rules,omitempty"`
}

// Rule is an ordered override spec attached to a feature. Every field is
// optional unless noted. When Variations is non-empty the rule describes
// an embedded experiment (see RuleToExperiment); otherwise a present Force
// makes it a forced-value rule.
type Rule struct {
	Condition              condition.Expr    `json:"condition,omitempty"`
	ParentConditions       []PrerequisiteDef `json:"parentConditions,omitempty"`
	Coverage               *float64          `json:"coverage,omitempty"`
	Force                  json.RawMessage   `json:"force,omitempty"`
	Variations             []any             `json:"variations,omitempty"`
	Key                    string            `json:"key,omitempty"`
	Weights                []float64         `json:"weights,omitempty"`
	Namespace              *NamespaceDef     `json:"namespace,omitempty"`
	HashAttribute          string            `json:"hashAttribute,omitempty"`
	FallbackAttribute      string            `json:"fallbackAttribute,omitempty"`
	HashVersion            int               `json:"hashVersion,omitempty"`
	Range                  *RangeDef         `json:"range,omitempty"`
	Ranges                 []RangeDef        `json:"ranges,omitempty"`
	Meta                   []VariationMeta   `json:"meta,omitempty"`
	Filters                []Filter          `json:"filters,omitempty"`
	Seed                   string            `json:"seed,omitempty"`
	Name                   string            `json:"name,omitempty"`
	Phase                  string            `json:"phase,omitempty"`
	DisableStickyBucketing bool              `json:"disableStickyBucketing,omitempty"`
	BucketVersion          int               `json:"bucketVersion,omitempty"`
	MinBucketVersion       int               `json:"minBucketVersion,omitempty"`
}

// IsForceRule reports whether this rule is a plain forced-value rule (as
// opposed to an embedded experiment).
func (r Rule) IsForceRule() bool {
	return len(r.Variations) == 0 && len(r.Force) > 0
}

// ForcedValue decodes the rule's raw Force payload into a generic JSON
// value.
func (r Rule) ForcedValue() (any, error) {
	var v any
	if err := json.Unmarshal(r.Force, &v); err != nil {
		return nil, fmt.Errorf("ruleengine: decode rule force value: %w", err)
	}
	return v, nil
}

// Experiment is a standalone A/B test: same shape as Rule but with
// mandatory Key/Variations, an Active flag, and an integer forced
// variation index rather than a forced value.
type Experiment struct {
	Key                    string            `json:"key"`
	Variations             []any             `json:"variations"`
	Active                 *bool             `json:"active,omitempty"`
	Force                  *int              `json:"force,omitempty"`
	Condition              condition.Expr    `json:"condition,omitempty"`
	ParentConditions       []PrerequisiteDef `json:"parentConditions,omitempty"`
	Coverage               *float64          `json:"coverage,omitempty"`
	Weights                []float64         `json:"weights,omitempty"`
	Namespace              *NamespaceDef     `json:"namespace,omitempty"`
	HashAttribute          string            `json:"hashAttribute,omitempty"`
	FallbackAttribute      string            `json:"fallbackAttribute,omitempty"`
	HashVersion            int               `json:"hashVersion,omitempty"`
	Ranges                 []RangeDef        `json:"ranges,omitempty"`
	Meta                   []VariationMeta   `json:"meta,omitempty"`
	Filters                []Filter          `json:"filters,omitempty"`
	Seed                   string            `json:"seed,omitempty"`
	Name                   string            `json:"name,omitempty"`
	Phase                  string            `json:"phase,omitempty"`
	DisableStickyBucketing bool              `json:"disableStickyBucketing,omitempty"`
	BucketVersion          int               `json:"bucketVersion,omitempty"`
	MinBucketVersion       int               `json:"minBucketVersion,omitempty"`
}

// IsActive reports whether the experiment is active (default true).
func (e Experiment) IsActive() bool {
	return e.Active == nil || *e.Active
}

// RuleToExperiment builds the embedded experiment described by a rule
// that carries Variations, per spec §4.5.1 step (e). featureID seeds the
// experiment's key when the rule has none of its own.
func RuleToExperiment(r Rule, featureID string) Experiment {
	key := r.Key
	if key == "" {
		key = featureID
	}
	return Experiment{
		Key:                    key,
		Variations:             r.Variations,
		Active:                 boolPtr(true),
		Condition:              r.Condition,
		ParentConditions:       r.ParentConditions,
		Coverage:               r.Coverage,
		Weights:                r.Weights,
		Namespace:              r.Namespace,
		HashAttribute:          r.HashAttribute,
		FallbackAttribute:      r.FallbackAttribute,
		HashVersion:            r.HashVersion,
		Ranges:                 r.Ranges,
		Meta:                   r.Meta,
		Filters:                r.Filters,
		Seed:                   r.Seed,
		Name:                   r.Name,
		Phase:                  r.Phase,
		DisableStickyBucketing: r.DisableStickyBucketing,
		BucketVersion:          r.BucketVersion,
		MinBucketVersion:       r.MinBucketVersion,
	}
}

func boolPtr(b bool) *bool { return &b }

// VariationMeta carries optional display metadata for one experiment arm.
type VariationMeta struct {
	Key         string `json:"key,omitempty"`
	Name        string `json:"name,omitempty"`
	Passthrough bool   `json:"passthrough,omitempty"`
}

// Filter restricts a rule/experiment to subjects whose hash of Attribute
// lands inside one of Ranges.
type Filter struct {
	Seed        string     `json:"seed"`
	Ranges      []RangeDef `json:"ranges"`
	HashVersion int        `json:"hashVersion,omitempty"`
	Attribute   string     `json:"attribute,omitempty"`
}

func (f Filter) attribute() string {
	if f.Attribute == "" {
		return "id"
	}
	return f.Attribute
}

func (f Filter) hashVersion() hashing.Version {
	return hashing.ParseVersion(f.HashVersion, hashing.V2)
}

// PrerequisiteDef is the JSON shape of a Prerequisite / parent condition.
type PrerequisiteDef struct {
	ID        string         `json:"id"`
	Condition condition.Expr `json:"condition"`
	Gate      bool           `json:"gate,omitempty"`
}

func (p PrerequisiteDef) toEngine() prerequisite.Prerequisite {
	return prerequisite.Prerequisite{ID: p.ID, Condition: p.Condition, Gate: p.Gate}
}

// RangeDef is the JSON array shape [lo, hi] of a half-open bucket range.
type RangeDef [2]float64

func (r RangeDef) toBucket() bucket.Range { return bucket.Range{Lo: r[0], Hi: r[1]} }

// NamespaceDef is the JSON array shape [id, lo, hi] of a namespace.
type NamespaceDef struct {
	ID string
	Lo float64
	Hi float64
}

func (n NamespaceDef) toBucket() *bucket.Namespace {
	return &bucket.Namespace{Name: n.ID, Lo: n.Lo, Hi: n.Hi}
}

// UnmarshalJSON decodes a NamespaceDef from its wire tuple [id, lo, hi].
func (n *NamespaceDef) UnmarshalJSON(data []byte) error {
	var tuple [3]any
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("ruleengine: decode namespace: %w", err)
	}
	id, _ := tuple[0].(string)
	lo, _ := tuple[1].(float64)
	hi, _ := tuple[2].(float64)
	*n = NamespaceDef{ID: id, Lo: lo, Hi: hi}
	return nil
}

// MarshalJSON encodes a NamespaceDef back to its wire tuple form.
func (n NamespaceDef) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{n.ID, n.Lo, n.Hi})
}

// Source enumerates where a FeatureResult's value came from.
type Source string

const (
	SourceUnknownFeature     Source = "unknown_feature"
	SourceDefaultValue       Source = "default_value"
	SourceForce              Source = "force"
	SourceExperiment         Source = "experiment"
	SourceCyclicPrerequisite Source = "cyclic_prerequisite"
	SourcePrerequisite       Source = "prerequisite"
)

// FeatureResult is the outcome of evaluating a single feature for a
// context.
type FeatureResult struct {
	Value            any               `json:"value"`
	On               bool              `json:"on"`
	Off              bool              `json:"off"`
	Source           Source            `json:"source"`
	Experiment       *Experiment       `json:"experiment,omitempty"`
	ExperimentResult *ExperimentResult `json:"experimentResult,omitempty"`
}

// ExperimentResult is the outcome of running a single experiment for a
// context. VariationID and Value are always set, even when InExperiment
// is false (0 and Variations[0], respectively).
type ExperimentResult struct {
	InExperiment     bool     `json:"inExperiment"`
	VariationID      int      `json:"variationId"`
	Value            any      `json:"value"`
	HashUsed         bool     `json:"hashUsed"`
	HashAttribute    string   `json:"hashAttribute"`
	HashValue        string   `json:"hashValue"`
	FeatureID        string   `json:"featureId,omitempty"`
	Key              string   `json:"key"`
	Bucket           *float64 `json:"bucket,omitempty"`
	Name             string   `json:"name,omitempty"`
	Passthrough      bool     `json:"passthrough"`
	StickyBucketUsed bool     `json:"stickyBucketUsed"`
}

// Context is the per-evaluation input: attributes plus the evaluation
// controls that influence experiment gating. Context is created per
// evaluation and never mutated afterward.
type Context struct {
	Attributes       map[string]any
	Features         map[string]*Feature
	Enabled          bool
	URL              string
	QAMode           bool
	ForcedVariations map[string]int
}

// Truthy mirrors the JS !!value rule used to derive FeatureResult.On from
// Value: only false, nil, "", and 0 are falsy. Arrays and maps are truthy
// even when empty, matching the reference SDKs' behavior.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
