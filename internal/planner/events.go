package planner

import "planforge/internal/llm"

// PlanCompletedEvent is published on eventbus.TopicPlanCompleted.
type PlanCompletedEvent struct {
	Plan *Plan
}

// PlanFailedEvent is published on eventbus.TopicPlanFailed.
type PlanFailedEvent struct {
	RequestID string
	Provider  llm.ProviderID
	Err       error
}
