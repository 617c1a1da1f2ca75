package agents

import (
	"encoding/json"
	"strings"
)

// modelReply is the JSON shape the prompts ask for.
type modelReply struct {
	Confidence      float64          `json:"confidence"`
	Recommendations []Recommendation `json:"recommendations"`
}

// defaultConfidence is assigned when a reply carries usable content but no
// parseable confidence value.
const defaultConfidence = 0.5

// parseReply extracts recommendations and a confidence score from a model
// reply. Strict JSON is tried first (including fenced code blocks); a
// non-JSON reply degrades to a single free-text recommendation so a verbose
// model never zeroes out an otherwise successful call.
func parseReply(role Role, content string) ([]Recommendation, float64) {
	trimmed := strings.TrimSpace(stripCodeFence(content))

	var reply modelReply
	if err := json.Unmarshal([]byte(trimmed), &reply); err == nil && len(reply.Recommendations) > 0 {
		confidence := reply.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = defaultConfidence
		}
		recs := make([]Recommendation, 0, len(reply.Recommendations))
		for _, rec := range reply.Recommendations {
			if strings.TrimSpace(rec.Title) == "" {
				continue
			}
			recs = append(recs, rec)
		}
		if len(recs) > 0 {
			return recs, confidence
		}
	}

	// Bare array form, without the wrapper object.
	var bare []Recommendation
	if err := json.Unmarshal([]byte(trimmed), &bare); err == nil && len(bare) > 0 {
		recs := make([]Recommendation, 0, len(bare))
		for _, rec := range bare {
			if strings.TrimSpace(rec.Title) != "" {
				recs = append(recs, rec)
			}
		}
		if len(recs) > 0 {
			return recs, defaultConfidence
		}
	}

	if trimmed == "" {
		return nil, 0
	}

	// Plain-text fallback: the whole reply becomes one finding titled after
	// the role so synthesis still has a dedupe key.
	title := strings.TrimSpace(firstLine(trimmed))
	if len(title) > 80 || title == "" {
		title = string(role) + " findings"
	}
	return []Recommendation{{Title: title, Description: trimmed}}, 0.3
}

// stripCodeFence removes a surrounding markdown code fence if present.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return trimmed
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
