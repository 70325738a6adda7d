package ruleengine

import (
	"encoding/json"
	"fmt"
)

// featuresEnvelope is the unencrypted wire shape of a features payload:
// {"features": {"<id>": {...}, ...}}.
type featuresEnvelope struct {
	Features map[string]*Feature `json:"features"`
}

// DecodeFeatures parses a features payload. payload is either the full
// {"features": {...}} envelope returned by the unencrypted endpoint, or
// (when decrypted is true) the bare features object produced by
// decrypting an encryptedFeatures payload, which has no wrapping.
func DecodeFeatures(payload []byte, decrypted bool) (map[string]*Feature, error) {
	if decrypted {
		var features map[string]*Feature
		if err := json.Unmarshal(payload, &features); err != nil {
			return nil, fmt.Errorf("ruleengine: decode decrypted features: %w", err)
		}
		return features, nil
	}

	var env featuresEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("ruleengine: decode features envelope: %w", err)
	}
	if env.Features == nil {
		env.Features = map[string]*Feature{}
	}
	return env.Features, nil
}
