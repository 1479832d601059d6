package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON strips markdown code fences that models wrap around JSON
// payloads.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// ParseAssessment validates a classification response against the fixed
// output schema: an object with a recognized classification, a numeric
// confidence in [0,1] and a non-empty rationale. Any deviation is an
// error, never a best-effort parse; callers retry or downgrade instead.
func ParseAssessment(raw string) (*Assessment, error) {
	cleaned := ExtractJSON(raw)

	var data map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse classification response: %w", err)
	}

	var classification string
	if err := requireField(data, "classification", &classification); err != nil {
		return nil, err
	}

	verdict := Verdict(strings.ToLower(strings.TrimSpace(classification)))
	switch verdict {
	case VerdictEligible, VerdictIneligible, VerdictUnknown:
	default:
		return nil, fmt.Errorf("unrecognized classification %q", classification)
	}

	var confidence float64
	if err := requireField(data, "confidence", &confidence); err != nil {
		return nil, err
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("confidence %v outside [0,1]", confidence)
	}

	var rationale string
	if err := requireField(data, "rationale", &rationale); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rationale) == "" {
		return nil, fmt.Errorf("empty rationale")
	}

	return &Assessment{
		Verdict:    verdict,
		Confidence: confidence,
		Rationale:  strings.TrimSpace(rationale),
		Raw:        raw,
	}, nil
}

func requireField(data map[string]json.RawMessage, key string, target any) error {
	value, ok := data[key]
	if !ok {
		return fmt.Errorf("missing %q field", key)
	}
	if err := json.Unmarshal(value, target); err != nil {
		return fmt.Errorf("invalid %q field: %w", key, err)
	}
	return nil
}
