package conversation

import "time"

// MaxMessageDeliveryAttempts bounds retries of a single outbound message
// to retryable messaging broker errors, per spec.md §4.7.
const MaxMessageDeliveryAttempts = 5

// Config holds the conversation engine's configurable timeouts and
// capacities, per spec.md §4.7.
type Config struct {
	AckTimeout          time.Duration
	MsgTimeout          time.Duration
	PollInterval        time.Duration
	PendingCapacity     int
	MaxDeliveryAttempts int
}

// DefaultConfig returns spec.md §4.7's literal defaults.
func DefaultConfig() Config {
	return Config{
		AckTimeout:          30 * time.Second,
		MsgTimeout:          300 * time.Second,
		PollInterval:        time.Second,
		PendingCapacity:     DefaultPendingCapacity,
		MaxDeliveryAttempts: MaxMessageDeliveryAttempts,
	}
}
