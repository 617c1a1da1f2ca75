package agents

import (
	"fmt"

	"advisor/pkg/llm"
)

// roleFocus maps each role to the concern its prompt centers on.
var roleFocus = map[Role]string{
	RoleStrategy:       "adoption strategy, organizational readiness, and phased rollout planning",
	RoleInfrastructure: "compute, networking, storage capacity, and platform architecture",
	RoleCompliance:     "regulatory obligations, data governance, and audit readiness",
	RoleResearch:       "emerging techniques, model selection, and build-versus-buy tradeoffs",
	RoleMLOps:          "training pipelines, deployment automation, monitoring, and model lifecycle",
	RoleSecurity:       "threat surface, access control, data protection, and supply chain risk",
	RoleCost:           "spend efficiency, capacity right-sizing, and cost attribution",
}

const systemPromptTemplate = `You are a senior advisor reviewing an infrastructure assessment.
Your specialty is %s.

Reply with a single JSON object of this shape and nothing else:
{
  "confidence": <float between 0 and 1>,
  "recommendations": [
    {"title": "<short imperative title>", "description": "<2-3 sentences>", "priority": "<high|medium|low>"}
  ]
}

Ground every recommendation in the assessment content. Omit recommendations
you cannot justify from the material.`

// buildRequest assembles the provider-agnostic completion request for one
// role and assessment.
func buildRequest(role Role, assessment *Assessment) llm.CompletionRequest {
	system := fmt.Sprintf(systemPromptTemplate, roleFocus[role])
	user := fmt.Sprintf("Assessment %s: %s\n\n%s", assessment.ID, assessment.Title, assessment.Content)
	return llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(system),
		llm.NewUserMessage(user),
	})
}
