package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplyStrictJSON(t *testing.T) {
	content := `{"confidence": 0.85, "recommendations": [
		{"title": "Adopt GPU autoscaling", "description": "Scale training nodes on demand.", "priority": "high"},
		{"title": "Consolidate registries", "description": "One artifact registry.", "priority": "low"}
	]}`

	recs, confidence := parseReply(RoleInfrastructure, content)
	require.Len(t, recs, 2)
	assert.Equal(t, "Adopt GPU autoscaling", recs[0].Title)
	assert.InDelta(t, 0.85, confidence, 1e-9)
}

func TestParseReplyFencedJSON(t *testing.T) {
	content := "```json\n{\"confidence\": 0.7, \"recommendations\": [{\"title\": \"Rotate keys\", \"description\": \"d\"}]}\n```"

	recs, confidence := parseReply(RoleSecurity, content)
	require.Len(t, recs, 1)
	assert.Equal(t, "Rotate keys", recs[0].Title)
	assert.InDelta(t, 0.7, confidence, 1e-9)
}

func TestParseReplyBareArray(t *testing.T) {
	content := `[{"title": "Tag spend by team", "description": "d"}]`

	recs, confidence := parseReply(RoleCost, content)
	require.Len(t, recs, 1)
	assert.InDelta(t, defaultConfidence, confidence, 1e-9)
}

func TestParseReplyPlainTextFallback(t *testing.T) {
	content := "Harden the ingress\nThe cluster exposes the dashboard publicly."

	recs, confidence := parseReply(RoleSecurity, content)
	require.Len(t, recs, 1)
	assert.Equal(t, "Harden the ingress", recs[0].Title)
	assert.Contains(t, recs[0].Description, "dashboard")
	assert.InDelta(t, 0.3, confidence, 1e-9)
}

func TestParseReplyLongFirstLineFallsBackToRoleTitle(t *testing.T) {
	long := make([]byte, 120)
	for i := range long {
		long[i] = 'x'
	}

	recs, _ := parseReply(RoleResearch, string(long))
	require.Len(t, recs, 1)
	assert.Equal(t, "research findings", recs[0].Title)
}

func TestParseReplyEmpty(t *testing.T) {
	recs, confidence := parseReply(RoleStrategy, "   ")
	assert.Empty(t, recs)
	assert.Zero(t, confidence)
}

func TestParseReplyOutOfRangeConfidenceClamped(t *testing.T) {
	content := `{"confidence": 3.5, "recommendations": [{"title": "t", "description": "d"}]}`
	_, confidence := parseReply(RoleStrategy, content)
	assert.InDelta(t, defaultConfidence, confidence, 1e-9)
}
