package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
)

// Read methods that take a Transaction accept nil to read outside of one.

// AccountRepository defines data access for accounts.
type AccountRepository interface {
	Create(ctx context.Context, tx Transaction, account *domain.Account) error
	GetByID(ctx context.Context, companyID, id string) (*domain.Account, error)
	// GetByIDsForUpdate locks the rows in the order given; callers sort ids first.
	GetByIDsForUpdate(ctx context.Context, tx Transaction, companyID string, ids []string) ([]*domain.Account, error)
	UpdateBalance(ctx context.Context, tx Transaction, id string, balance decimal.Decimal, updatedAt time.Time) error
	SoftDelete(ctx context.Context, tx Transaction, id string, deletedAt time.Time) error
	List(ctx context.Context, companyID string, limit, offset int) ([]*domain.Account, error)
}

// TransactionRepository defines data access for business transactions.
type TransactionRepository interface {
	// Create returns domain.ErrDuplicateNumber when (company, type, number) is taken.
	Create(ctx context.Context, tx Transaction, t *domain.Transaction) error
	GetByID(ctx context.Context, companyID, id string) (*domain.Transaction, error)
	GetForUpdate(ctx context.Context, tx Transaction, companyID, id string) (*domain.Transaction, error)
	Update(ctx context.Context, tx Transaction, t *domain.Transaction) error
	// ListInRange returns non-deleted transactions of any status dated within [from, to].
	ListInRange(ctx context.Context, companyID string, from, to time.Time) ([]*domain.Transaction, error)
	// ListPostedBefore returns posted, non-deleted transactions dated before the given day.
	ListPostedBefore(ctx context.Context, companyID string, before time.Time) ([]*domain.Transaction, error)
}

// JournalRepository defines data access for journal entries and their lines.
type JournalRepository interface {
	// Create stores the entry header and all of its lines.
	Create(ctx context.Context, tx Transaction, entry *domain.JournalEntry) error
	GetByID(ctx context.Context, companyID, id string) (*domain.JournalEntry, error)
	GetForUpdate(ctx context.Context, tx Transaction, companyID, id string) (*domain.JournalEntry, error)
	// Update persists header fields; lines are immutable apart from DeleteLine.
	Update(ctx context.Context, tx Transaction, entry *domain.JournalEntry) error
	DeleteLine(ctx context.Context, tx Transaction, entryID, lineID string) error
	ListByTransaction(ctx context.Context, tx Transaction, companyID, transactionID string) ([]*domain.JournalEntry, error)
	ListPostedInRange(ctx context.Context, companyID string, from, to time.Time) ([]*domain.JournalEntry, error)
	// SumPosted totals base amounts of posted lines for an account, optionally up to asOf.
	SumPosted(ctx context.Context, tx Transaction, accountID string, asOf *time.Time) (debit, credit decimal.Decimal, err error)
	SumPostedCompany(ctx context.Context, companyID string) (debit, credit decimal.Decimal, err error)
	ListLinesByAccount(ctx context.Context, companyID, accountID string, limit, offset int) ([]domain.JournalEntryLine, error)
	NextEntryNumber(ctx context.Context, tx Transaction, companyID string) (string, error)
}

// PeriodRepository defines data access for fiscal periods.
type PeriodRepository interface {
	Create(ctx context.Context, tx Transaction, period *domain.FiscalPeriod) error
	GetByID(ctx context.Context, companyID, id string) (*domain.FiscalPeriod, error)
	// GetForShare blocks concurrent closing while an entry is posted into the period.
	GetForShare(ctx context.Context, tx Transaction, companyID, id string) (*domain.FiscalPeriod, error)
	GetForUpdate(ctx context.Context, tx Transaction, companyID, id string) (*domain.FiscalPeriod, error)
	FindByDate(ctx context.Context, companyID string, date time.Time) (*domain.FiscalPeriod, error)
	// NextAfter returns the first period starting after date.
	NextAfter(ctx context.Context, companyID string, date time.Time) (*domain.FiscalPeriod, error)
	List(ctx context.Context, companyID string) ([]*domain.FiscalPeriod, error)
	Update(ctx context.Context, tx Transaction, period *domain.FiscalPeriod) error
}

// AuditRepository is append-only; records cannot be updated or deleted through it.
type AuditRepository interface {
	// LockHead locks and returns the company chain head, creating it if absent.
	LockHead(ctx context.Context, tx Transaction, companyID string) (domain.ChainHead, error)
	// Append inserts the sealed record and moves the head to it.
	Append(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	Head(ctx context.Context, companyID string) (domain.ChainHead, error)
	GetBySequence(ctx context.Context, companyID string, sequence int64) (*domain.AuditLog, error)
	// ListRange returns records with from <= sequence <= to ordered by sequence.
	ListRange(ctx context.Context, companyID string, from, to int64) ([]*domain.AuditLog, error)
	ListByEntity(ctx context.Context, companyID string, ref domain.EntityRef, limit, offset int) ([]*domain.AuditLog, error)
	CreateCheckpoint(ctx context.Context, tx Transaction, cp *domain.AuditCheckpoint) error
	// ListCheckpoints returns checkpoints at or before sequence, newest first.
	ListCheckpoints(ctx context.Context, companyID string, atOrBefore int64, limit int) ([]*domain.AuditCheckpoint, error)
}

// AnomalyRepository defines data access for anomaly findings.
type AnomalyRepository interface {
	SaveBatch(ctx context.Context, tx Transaction, findings []*domain.AnomalyDetection) error
	GetByID(ctx context.Context, companyID, id string) (*domain.AnomalyDetection, error)
	GetForUpdate(ctx context.Context, tx Transaction, companyID, id string) (*domain.AnomalyDetection, error)
	Update(ctx context.Context, tx Transaction, a *domain.AnomalyDetection) error
	// ListUnresolved returns open and reviewed findings; periodID "" matches all periods.
	ListUnresolved(ctx context.Context, companyID, periodID string) ([]*domain.AnomalyDetection, error)
	ListByRun(ctx context.Context, companyID, runID string) ([]*domain.AnomalyDetection, error)
}

// RunRepository defines data access for books close runs.
type RunRepository interface {
	Create(ctx context.Context, tx Transaction, run *domain.BooksCloseRun) error
	Update(ctx context.Context, tx Transaction, run *domain.BooksCloseRun) error
	GetByID(ctx context.Context, companyID, id string) (*domain.BooksCloseRun, error)
	LatestForPeriod(ctx context.Context, companyID, periodID string) (*domain.BooksCloseRun, error)
}

// RuleRepository defines data access for company anomaly rules.
type RuleRepository interface {
	Create(ctx context.Context, tx Transaction, rule *domain.AnomalyRule) error
	ListActive(ctx context.Context, companyID string) ([]*domain.AnomalyRule, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Retrier re-runs an operation on transient storage errors.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// RunLock is a best-effort distributed mutex around books close runs.
type RunLock interface {
	// TryLock returns ok=false when the key is held by someone else.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

type noRetry struct{}

func (noRetry) Retry(_ context.Context, operation func() error) error { return operation() }
