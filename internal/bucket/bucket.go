// Package bucket implements the pure bucket-math used to partition the
// unit interval into variation ranges and to test subject membership in
// those ranges, in namespaces, and in rollouts.
package bucket

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/heimdall-sdk/heimdall/internal/hashing"
)

// Range is a half-open interval [Lo, Hi) over the unit interval.
type Range struct {
	Lo float64
	Hi float64
}

// Contains reports whether h falls in the half-open range [r.Lo, r.Hi).
func (r Range) Contains(h float64) bool {
	return h >= r.Lo && h < r.Hi
}

// Namespace restricts a rule or experiment to the sub-interval [Lo, Hi)
// of the hash space carved out under the name Name, making multiple
// experiments that share a namespace mutually exclusive.
type Namespace struct {
	Name string
	Lo   float64
	Hi   float64
}

// EqualWeights returns n copies of 1/n. n <= 0 returns an empty slice.
func EqualWeights(n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	w := make([]float64, n)
	share := 1.0 / float64(n)
	for i := range w {
		w[i] = share
	}
	return w
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// BucketRanges partitions the unit interval into n coverage-scaled ranges
// proportional to weights. If weights don't sum to ~1 (tolerance 0.01) or
// its length doesn't match n, equal weights are substituted silently.
//
// Each range starts at the running (unscaled) weight accumulator and ends
// at accumulator + coverage*weight_i; the accumulator then advances by the
// full (unscaled) weight_i, not the coverage-scaled span. This lets
// partial coverage carve out gaps between variations rather than simply
// shrinking the tail.
func BucketRanges(n int, coverage float64, weights []float64) []Range {
	coverage = clamp01(coverage)

	if len(weights) != n || !weightsAreValid(weights) {
		weights = EqualWeights(n)
	}

	ranges := make([]Range, n)
	acc := 0.0
	for i, w := range weights {
		lo := acc
		hi := acc + coverage*w
		ranges[i] = Range{Lo: lo, Hi: hi}
		acc += w
	}
	return ranges
}

func weightsAreValid(weights []float64) bool {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	diff := sum - 1.0
	if diff < 0 {
		diff = -diff
	}
	return diff <= 0.01
}

// ChooseVariation returns the index of the first range containing h, or -1
// if none does.
func ChooseVariation(h float64, ranges []Range) int {
	for i, r := range ranges {
		if r.Contains(h) {
			return i
		}
	}
	return -1
}

// InNamespace reports whether subject userID belongs to namespace ns,
// using the v1 hash of "__"+ns.Name against userID. A nil namespace always
// matches.
func InNamespace(userID string, ns *Namespace) bool {
	if ns == nil {
		return true
	}
	h, ok := hashing.Hash("__"+ns.Name, userID, hashing.V1)
	if !ok {
		return false
	}
	return h >= ns.Lo && h < ns.Hi
}

// AttributeLookup resolves the string value of a hash attribute, reporting
// whether the attribute was present and non-empty.
type AttributeLookup func(attribute string) (value string, ok bool)

// IncludedInRollout decides whether a subject is included in a rollout
// governed either by an explicit range or by a flat coverage threshold.
// If both rng and coverage are nil, every subject is included. An empty
// or missing hash attribute value is always excluded.
func IncludedInRollout(
	lookup AttributeLookup,
	seed string,
	hashAttribute string,
	rng *Range,
	coverage *float64,
	version hashing.Version,
) bool {
	if rng == nil && coverage == nil {
		return true
	}

	if hashAttribute == "" {
		hashAttribute = "id"
	}
	value, ok := lookup(hashAttribute)
	if !ok || value == "" {
		return false
	}

	h, ok := hashing.Hash(seed, value, version)
	if !ok {
		return false
	}

	if rng != nil {
		return rng.Contains(h)
	}
	return h <= *coverage
}

// QueryStringOverride inspects rawURL's query string for a key matching
// expKey and, if present and parseable as an integer index within
// [0, nVariations), returns that index.
func QueryStringOverride(expKey, rawURL string, nVariations int) (int, bool) {
	if rawURL == "" {
		return 0, false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0, false
	}
	raw := parsed.Query().Get(expKey)
	if raw == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	if idx < 0 || idx >= nVariations {
		return 0, false
	}
	return idx, true
}

// String renders a range for diagnostic/log purposes.
func (r Range) String() string {
	return fmt.Sprintf("[%.4f, %.4f)", r.Lo, r.Hi)
}
