package eventing

import "context"

type contextKey string

const (
	contextKeyEnvelope contextKey = "eventing.envelope"
	contextKeyShuttle  contextKey = "eventing.shuttle_id"
	contextKeyCorr     contextKey = "eventing.correlation_id"
)

// WithEnvelope attaches envelope metadata to context.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, contextKeyEnvelope, env)
}

// EnvelopeFromContext returns envelope metadata if available.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(contextKeyEnvelope).(Envelope)
	return env, ok
}

// WithShuttleID sets the shuttle id in context.
func WithShuttleID(ctx context.Context, shuttleID string) context.Context {
	return context.WithValue(ctx, contextKeyShuttle, shuttleID)
}

// WithCorrelationID sets the correlation id in context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, contextKeyCorr, correlationID)
}

// MetaFromContext builds envelope metadata from context values.
func MetaFromContext(ctx context.Context) Meta {
	meta := Meta{}
	if shuttleID, ok := ctx.Value(contextKeyShuttle).(string); ok {
		meta.ShuttleID = shuttleID
	}
	if corr, ok := ctx.Value(contextKeyCorr).(string); ok {
		meta.CorrelationID = corr
	}
	return meta
}
