package enums

// OutboxTerminalReason explains why an outbox event stopped being retried.
type OutboxTerminalReason string

const (
	OutboxTerminalMaxAttempts  OutboxTerminalReason = "max_attempts"
	OutboxTerminalNonRetryable OutboxTerminalReason = "non_retryable"
)

var validOutboxTerminalReasons = []OutboxTerminalReason{
	OutboxTerminalMaxAttempts,
	OutboxTerminalNonRetryable,
}

func (r OutboxTerminalReason) IsValid() bool {
	for _, candidate := range validOutboxTerminalReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
