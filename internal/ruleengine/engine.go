package ruleengine

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/heimdall-sdk/heimdall/internal/bucket"
	"github.com/heimdall-sdk/heimdall/internal/condition"
	"github.com/heimdall-sdk/heimdall/internal/hashing"
	"github.com/heimdall-sdk/heimdall/internal/prerequisite"
)

// Engine drives feature and experiment evaluation. It is pure and
// allocation-only: safe for concurrent use by construction, and it never
// blocks.
type Engine struct {
	logger *slog.Logger
}

// New builds an Engine. A nil logger falls back to slog.Default(), matching
// the rest of the SDK's dependency-injection convention.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Feature evaluates the named feature against ctx, walking its rules in
// order.
func (e *Engine) Feature(ctx *Context, id string) FeatureResult {
	return e.featureWithPath(ctx, id, nil)
}

func (e *Engine) featureWithPath(ctx *Context, id string, path []string) FeatureResult {
	feature := ctx.Features[id]
	if feature == nil {
		return FeatureResult{Value: nil, On: false, Off: true, Source: SourceUnknownFeature}
	}

	extended := extendPath(path, id)

	for _, rule := range feature.Rules {
		if len(rule.ParentConditions) > 0 {
			skip, err := prerequisite.Eval(toEnginePrereqs(rule.ParentConditions), extended, e.resolveFeatureValue(ctx))
			if err != nil {
				switch {
				case errors.Is(err, prerequisite.ErrCycling):
					return cyclicResult()
				case errors.Is(err, prerequisite.ErrGateUnmet):
					return prerequisiteResult()
				default:
					e.logger.Warn("ruleengine: prerequisite evaluation error, skipping rule", "feature", id, "error", err)
					continue
				}
			}
			if skip {
				continue
			}
		}

		if len(rule.Filters) > 0 && filtersExclude(rule.Filters, ctx.Attributes) {
			continue
		}

		if rule.Condition != nil && !condition.Evaluate(ctx.Attributes, rule.Condition) {
			continue
		}

		if rule.IsForceRule() {
			if result, matched := e.evalForceRule(rule, id, ctx); matched {
				return result
			}
			continue
		}

		if len(rule.Variations) == 0 {
			// Neither a force value nor variations: nothing this rule can do.
			continue
		}

		exp := RuleToExperiment(rule, id)
		res := e.Run(ctx, &exp, id, extended)
		if res.InExperiment && !res.Passthrough {
			return FeatureResult{
				Value:            res.Value,
				On:               Truthy(res.Value),
				Off:              !Truthy(res.Value),
				Source:           SourceExperiment,
				Experiment:       &exp,
				ExperimentResult: &res,
			}
		}
	}

	return FeatureResult{
		Value:  feature.DefaultValue,
		On:     Truthy(feature.DefaultValue),
		Off:    !Truthy(feature.DefaultValue),
		Source: SourceDefaultValue,
	}
}

func (e *Engine) evalForceRule(rule Rule, featureID string, ctx *Context) (FeatureResult, bool) {
	seed := rule.Seed
	if seed == "" {
		seed = featureID
	}
	hashAttr := rule.HashAttribute
	if hashAttr == "" {
		hashAttr = "id"
	}
	var rng *bucket.Range
	if rule.Range != nil {
		r := rule.Range.toBucket()
		rng = &r
	}
	hv := hashing.ParseVersion(rule.HashVersion, hashing.V1)

	included := bucket.IncludedInRollout(attributeLookup(ctx.Attributes), seed, hashAttr, rng, rule.Coverage, hv)
	if !included {
		return FeatureResult{}, false
	}

	val, err := rule.ForcedValue()
	if err != nil {
		e.logger.Warn("ruleengine: malformed force value, skipping rule", "feature", featureID, "error", err)
		return FeatureResult{}, false
	}
	return FeatureResult{Value: val, On: Truthy(val), Off: !Truthy(val), Source: SourceForce}, true
}

// Run evaluates exp against ctx, implementing the experiment gating
// sequence. featureID and path are empty/nil for a standalone Run() call
// from the public API, and populated when the experiment was embedded in
// a feature rule.
func (e *Engine) Run(ctx *Context, exp *Experiment, featureID string, path []string) ExperimentResult {
	hashAttr := exp.HashAttribute
	if hashAttr == "" {
		hashAttr = "id"
	}
	hashValue, _ := attributeString(ctx.Attributes, hashAttr)

	fallback := func() ExperimentResult {
		var val any
		if len(exp.Variations) > 0 {
			val = exp.Variations[0]
		}
		return ExperimentResult{
			InExperiment:  false,
			VariationID:   0,
			Value:         val,
			HashUsed:      false,
			HashAttribute: hashAttr,
			HashValue:     hashValue,
			FeatureID:     featureID,
			Key:           resultKey(exp, 0),
			Name:          resultName(exp, 0),
			Passthrough:   resultPassthrough(exp, 0),
		}
	}

	result := func(variation int, hashUsed bool, bucketVal *float64) ExperimentResult {
		var val any
		if variation >= 0 && variation < len(exp.Variations) {
			val = exp.Variations[variation]
		}
		return ExperimentResult{
			InExperiment:  true,
			VariationID:   variation,
			Value:         val,
			HashUsed:      hashUsed,
			HashAttribute: hashAttr,
			HashValue:     hashValue,
			FeatureID:     featureID,
			Bucket:        bucketVal,
			Key:           resultKey(exp, variation),
			Name:          resultName(exp, variation),
			Passthrough:   resultPassthrough(exp, variation),
		}
	}

	if len(exp.Variations) < 2 {
		return fallback()
	}
	if !ctx.Enabled {
		return fallback()
	}

	if ctx.URL != "" {
		if idx, ok := bucket.QueryStringOverride(exp.Key, ctx.URL, len(exp.Variations)); ok {
			return result(idx, false, nil)
		}
	}
	if idx, ok := ctx.ForcedVariations[exp.Key]; ok {
		return result(idx, false, nil)
	}
	if !exp.IsActive() {
		return fallback()
	}

	value, ok := attributeString(ctx.Attributes, hashAttr)
	if !ok || value == "" {
		if exp.FallbackAttribute != "" {
			value, ok = attributeString(ctx.Attributes, exp.FallbackAttribute)
		}
		if !ok || value == "" {
			return fallback()
		}
	}
	hashValue = value

	if len(exp.Filters) > 0 {
		if filtersExclude(exp.Filters, ctx.Attributes) {
			return fallback()
		}
	} else if exp.Namespace != nil {
		if !bucket.InNamespace(value, exp.Namespace.toBucket()) {
			return fallback()
		}
	}

	if exp.Condition != nil && !condition.Evaluate(ctx.Attributes, exp.Condition) {
		return fallback()
	}

	if len(exp.ParentConditions) > 0 {
		skip, err := prerequisite.Eval(toEnginePrereqs(exp.ParentConditions), extendPath(path, featureID), e.resolveFeatureValue(ctx))
		if err != nil || skip {
			return fallback()
		}
	}

	var ranges []bucket.Range
	if len(exp.Ranges) > 0 {
		ranges = make([]bucket.Range, len(exp.Ranges))
		for i, r := range exp.Ranges {
			ranges[i] = r.toBucket()
		}
	} else {
		coverage := 1.0
		if exp.Coverage != nil {
			coverage = *exp.Coverage
		}
		ranges = bucket.BucketRanges(len(exp.Variations), coverage, exp.Weights)
	}

	seed := exp.Seed
	if seed == "" {
		seed = exp.Key
	}
	hv := hashing.ParseVersion(exp.HashVersion, hashing.V1)
	h, hashOK := hashing.Hash(seed, value, hv)
	if !hashOK {
		return fallback()
	}
	v := bucket.ChooseVariation(h, ranges)
	if v < 0 {
		return fallback()
	}
	if exp.Force != nil {
		return result(*exp.Force, false, nil)
	}
	if ctx.QAMode {
		return fallback()
	}

	bucketVal := h
	return result(v, true, &bucketVal)
}

func (e *Engine) resolveFeatureValue(ctx *Context) prerequisite.FeatureValue {
	return func(id string, path []string) (any, bool, error) {
		parentPath := path
		if len(parentPath) > 0 {
			parentPath = parentPath[:len(parentPath)-1]
		}
		res := e.featureWithPath(ctx, id, parentPath)
		return res.Value, res.Source == SourceCyclicPrerequisite, nil
	}
}

func cyclicResult() FeatureResult {
	return FeatureResult{Value: nil, On: false, Off: true, Source: SourceCyclicPrerequisite}
}

func prerequisiteResult() FeatureResult {
	return FeatureResult{Value: nil, On: false, Off: true, Source: SourcePrerequisite}
}

func toEnginePrereqs(defs []PrerequisiteDef) []prerequisite.Prerequisite {
	out := make([]prerequisite.Prerequisite, len(defs))
	for i, d := range defs {
		out[i] = d.toEngine()
	}
	return out
}

func extendPath(path []string, id string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = id
	return out
}

// filtersExclude reports whether any of filters excludes the subject
// described by attrs, per §4.5.3: a filter excludes iff the attribute
// value is empty or the hash lands outside every one of its ranges.
func filtersExclude(filters []Filter, attrs map[string]any) bool {
	for _, f := range filters {
		if filterExcludes(f, attrs) {
			return true
		}
	}
	return false
}

func filterExcludes(f Filter, attrs map[string]any) bool {
	value, ok := attributeString(attrs, f.attribute())
	if !ok || value == "" {
		return true
	}
	h, ok := hashing.Hash(f.Seed, value, f.hashVersion())
	if !ok {
		return true
	}
	for _, r := range f.Ranges {
		if r.toBucket().Contains(h) {
			return false
		}
	}
	return true
}

func attributeLookup(attrs map[string]any) bucket.AttributeLookup {
	return func(attribute string) (string, bool) {
		return attributeString(attrs, attribute)
	}
}

func attributeString(attrs map[string]any, path string) (string, bool) {
	v := condition.ResolvePath(attrs, path)
	if v == condition.Undef {
		return "", false
	}
	s := hashing.Stringify(v)
	return s, s != ""
}

func resultKey(exp *Experiment, variation int) string {
	if variation >= 0 && variation < len(exp.Meta) && exp.Meta[variation].Key != "" {
		return exp.Meta[variation].Key
	}
	return strconv.Itoa(variation)
}

func resultName(exp *Experiment, variation int) string {
	if variation >= 0 && variation < len(exp.Meta) {
		return exp.Meta[variation].Name
	}
	return ""
}

func resultPassthrough(exp *Experiment, variation int) bool {
	if variation >= 0 && variation < len(exp.Meta) {
		return exp.Meta[variation].Passthrough
	}
	return false
}
