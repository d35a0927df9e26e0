package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/tripleledger/internal/domain"
)

func testAccount(id string) *domain.Account {
	return &domain.Account{
		ID:             id,
		CompanyID:      "co-1",
		Code:           id,
		Name:           "Account " + id,
		Type:           domain.AccountTypeAsset,
		NormalBalance:  domain.NormalDebit,
		Currency:       "USD",
		OpeningBalance: decimal.Zero,
		CurrentBalance: decimal.Zero,
	}
}

func TestStore_CommitKeepsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Accounts().Create(ctx, tx, testAccount("1000")))
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")

	got, err := s.Accounts().GetByID(ctx, "co-1", "1000")
	require.NoError(t, err)
	assert.Equal(t, "Account 1000", got.Name)
}

func TestStore_RollbackRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Accounts().Create(ctx, tx, testAccount("1000")))
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Accounts().UpdateBalance(ctx, tx, "1000", decimal.NewFromInt(50), time.Now()))
	require.NoError(t, s.Accounts().Create(ctx, tx, testAccount("2000")))
	_, err = s.Journal().NextEntryNumber(ctx, tx, "co-1")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	got, err := s.Accounts().GetByID(ctx, "co-1", "1000")
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.IsZero())

	_, err = s.Accounts().GetByID(ctx, "co-1", "2000")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	num, err := s.Journal().NextEntryNumber(ctx, tx, "co-1")
	require.NoError(t, err)
	assert.Equal(t, "JE-000001", num)
	require.NoError(t, tx.Commit(ctx))
}

func TestStore_WriteRequiresTransaction(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.Accounts().Create(ctx, nil, testAccount("1000"))
	assert.ErrorIs(t, err, errNoTx)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	err = s.Accounts().Create(ctx, tx, testAccount("1000"))
	assert.ErrorIs(t, err, errNoTx)
}

func TestStore_BeginHonoursContext(t *testing.T) {
	s := New()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.Begin(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransactionRepo_DuplicateNumber(t *testing.T) {
	ctx := context.Background()
	s := New()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	first := &domain.Transaction{ID: "t1", CompanyID: "co-1", Type: domain.TxTypeInvoice, Number: "INV-1", TransactionDate: day}
	require.NoError(t, s.Transactions().Create(ctx, tx, first))

	dup := &domain.Transaction{ID: "t2", CompanyID: "co-1", Type: domain.TxTypeInvoice, Number: "INV-1", TransactionDate: day}
	assert.ErrorIs(t, s.Transactions().Create(ctx, tx, dup), domain.ErrDuplicateNumber)

	otherType := &domain.Transaction{ID: "t3", CompanyID: "co-1", Type: domain.TxTypeBill, Number: "INV-1", TransactionDate: day}
	assert.NoError(t, s.Transactions().Create(ctx, tx, otherType))
}

func TestAuditRepo_AppendMovesHead(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.Audit()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	head, err := repo.LockHead(ctx, tx, "co-1")
	require.NoError(t, err)
	assert.Equal(t, domain.GenesisHash, head.NextPrevious())

	log := &domain.AuditLog{ID: "a1", CompanyID: "co-1", Sequence: 1, Hash: "h1"}
	require.NoError(t, repo.Append(ctx, tx, log))

	skipped := &domain.AuditLog{ID: "a3", CompanyID: "co-1", Sequence: 3}
	assert.ErrorIs(t, repo.Append(ctx, tx, skipped), domain.ErrConflict)

	head, err = repo.Head(ctx, "co-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), head.LastSequence)
	assert.Equal(t, "h1", head.LastHash)

	assert.True(t, s.TamperAuditLog("co-1", 1, func(l *domain.AuditLog) { l.ActorID = "mallory" }))
	got, err := repo.GetBySequence(ctx, "co-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "mallory", got.ActorID)
	assert.False(t, s.TamperAuditLog("co-1", 2, func(*domain.AuditLog) {}))
}

func TestPeriodRepo_FindAndNext(t *testing.T) {
	ctx := context.Background()
	s := New()
	jan := &domain.FiscalPeriod{ID: "p1", CompanyID: "co-1", StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)}
	feb := &domain.FiscalPeriod{ID: "p2", CompanyID: "co-1", StartDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Periods().Create(ctx, tx, feb))
	require.NoError(t, s.Periods().Create(ctx, tx, jan))
	overlap := &domain.FiscalPeriod{ID: "p3", CompanyID: "co-1", StartDate: jan.EndDate, EndDate: feb.StartDate}
	assert.ErrorIs(t, s.Periods().Create(ctx, tx, overlap), domain.ErrPeriodOverlap)
	require.NoError(t, tx.Commit(ctx))

	got, err := s.Periods().FindByDate(ctx, "co-1", time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)

	next, err := s.Periods().NextAfter(ctx, "co-1", jan.EndDate)
	require.NoError(t, err)
	assert.Equal(t, "p2", next.ID)

	_, err = s.Periods().NextAfter(ctx, "co-1", feb.EndDate)
	assert.ErrorIs(t, err, domain.ErrPeriodNotFound)
}
