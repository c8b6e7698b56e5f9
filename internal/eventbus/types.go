package eventbus

import "time"

// Topic names a stream of events.
type Topic string

// Chat traffic.
const (
	TopicInboundMessage  Topic = "chat.inbound"
	TopicOutboundMessage Topic = "chat.outbound"
)

// Orchestrator events; payloads are the llm package's event types.
const (
	TopicLLMAttempt  Topic = "llm.attempt"
	TopicLLMRetry    Topic = "llm.retry"
	TopicLLMFallback Topic = "llm.fallback"
	TopicLLMFailure  Topic = "llm.failure"
)

// Plan lifecycle; payloads are the planner package's event types.
const (
	TopicPlanCompleted Topic = "plan.completed"
	TopicPlanFailed    Topic = "plan.failed"
)

// Process-level notices.
const (
	TopicError        Topic = "error"
	TopicStatusChange Topic = "status"
)

// Event is one published payload.
type Event struct {
	Topic     Topic
	Payload   any
	Timestamp time.Time
}

// Handler processes an event.
type Handler func(Event)
