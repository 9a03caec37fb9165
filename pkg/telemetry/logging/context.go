package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// PolicyIDKey is the context key for policy identifiers.
	PolicyIDKey contextKey = "policy_id"

	// AgentIDKey is the context key for agent identifiers.
	AgentIDKey contextKey = "agent_id"

	// RequestIDKey is the context key for evaluation request IDs.
	RequestIDKey contextKey = "request_id"
)

// WithPolicyID adds a policy identifier to the context.
func WithPolicyID(ctx context.Context, policyID string) context.Context {
	return context.WithValue(ctx, PolicyIDKey, policyID)
}

// GetPolicyID retrieves the policy identifier from the context.
func GetPolicyID(ctx context.Context) string {
	if policyID, ok := ctx.Value(PolicyIDKey).(string); ok {
		return policyID
	}
	return ""
}

// WithAgentID adds an agent identifier to the context.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, AgentIDKey, agentID)
}

// GetAgentID retrieves the agent identifier from the context.
func GetAgentID(ctx context.Context) string {
	if agentID, ok := ctx.Value(AgentIDKey).(string); ok {
		return agentID
	}
	return ""
}

// WithRequestID adds an evaluation request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the evaluation request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// ContextFields extracts the known fields from the context as key-value
// pairs suitable for slog's With.
func ContextFields(ctx context.Context) []any {
	var fields []any

	if policyID := GetPolicyID(ctx); policyID != "" {
		fields = append(fields, "policy_id", policyID)
	}
	if agentID := GetAgentID(ctx); agentID != "" {
		fields = append(fields, "agent_id", agentID)
	}
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}

	return fields
}

// FromContext returns the given logger extended with the context's
// fields. When the context carries none, the logger is returned as is.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
