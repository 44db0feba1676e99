package ports

import "context"

// EventPublisher emits structured operational events (routing transitions,
// write commits, invalidations). Payloads are adapter-neutral JSON so
// application code stays independent of broker specifics. Publishing is
// best-effort; callers log and continue on error.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, partitionKey string, payload []byte) error
}
