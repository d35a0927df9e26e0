package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// DefaultCheckpointInterval is how many audit records separate checkpoints.
	DefaultCheckpointInterval = 100

	// DefaultRunLockTTL bounds how long a books close run holds its lock.
	DefaultRunLockTTL = 10 * time.Minute

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// SystemActor is recorded when no user initiated a mutation.
	SystemActor = "system"
)
