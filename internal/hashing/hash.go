// Package hashing implements the FNV-1a based bucketing hashes used to
// deterministically place a subject into an experiment variation.
package hashing

import (
	"fmt"
	"strconv"
)

const (
	fnvOffsetBasis uint32 = 2166136261
	fnvPrime       uint32 = 16777619
)

// fnv1a32 computes the 32-bit FNV-1a hash of s.
func fnv1a32(s string) uint32 {
	state := fnvOffsetBasis
	for i := 0; i < len(s); i++ {
		state ^= uint32(s[i])
		state *= fnvPrime
	}
	return state
}

// Version identifies which bucketing hash variant to use.
type Version int

const (
	// VersionUnknown is any version the source doesn't recognize; it
	// carries no hash, per spec "no hash available".
	VersionUnknown Version = 0
	// V1 hashes value||seed, FNV-1a, mod 1000.
	V1 Version = 1
	// V2 hashes seed||value, FNV-1a, stringifies, FNV-1a again, mod 10000.
	V2 Version = 2
)

// Hash computes a float in [0, 1) for the given seed/value pair under the
// requested version. ok is false if version is not recognized, in which
// case the caller must treat the subject as having no hash available.
func Hash(seed, value string, version Version) (float64, bool) {
	switch version {
	case V1:
		h := fnv1a32(value + seed)
		return float64(h%1000) / 1000, true
	case V2:
		h1 := fnv1a32(seed + value)
		h2 := fnv1a32(strconv.FormatUint(uint64(h1), 10))
		return float64(h2%10000) / 10000, true
	default:
		return 0, false
	}
}

// ParseVersion coerces a raw version number (as decoded from JSON, where it
// may arrive as 0 for "not set") into a Version, applying the supplied
// default when the raw value is zero.
func ParseVersion(raw int, def Version) Version {
	if raw == 0 {
		return def
	}
	switch raw {
	case 1:
		return V1
	case 2:
		return V2
	default:
		return VersionUnknown
	}
}

// Stringify renders an arbitrary JSON-decoded value into the canonical
// string form the hash functions expect. Numbers are rendered without
// trailing zeroes where possible, matching the reference SDKs' behavior of
// hashing the attribute's string representation.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
