package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
)

// LedgerQueryUseCase serves read-only ledger lookups.
type LedgerQueryUseCase struct {
	transactionRepo TransactionRepository
	journalRepo     JournalRepository
	balance         *BalanceUseCase
}

// NewLedgerQueryUseCase creates a new LedgerQueryUseCase.
func NewLedgerQueryUseCase(transactionRepo TransactionRepository, journalRepo JournalRepository, balance *BalanceUseCase) *LedgerQueryUseCase {
	return &LedgerQueryUseCase{
		transactionRepo: transactionRepo,
		journalRepo:     journalRepo,
		balance:         balance,
	}
}

// GetEntry retrieves a journal entry with its lines.
func (uc *LedgerQueryUseCase) GetEntry(ctx context.Context, companyID, id string) (*domain.JournalEntry, error) {
	return uc.journalRepo.GetByID(ctx, companyID, id)
}

// ListEntriesByTransaction lists every entry of a transaction, any status.
func (uc *LedgerQueryUseCase) ListEntriesByTransaction(ctx context.Context, companyID, transactionID string) ([]*domain.JournalEntry, error) {
	if _, err := uc.transactionRepo.GetByID(ctx, companyID, transactionID); err != nil {
		return nil, err
	}
	return uc.journalRepo.ListByTransaction(ctx, nil, companyID, transactionID)
}

// ListLinesByAccount lists posted lines against an account.
func (uc *LedgerQueryUseCase) ListLinesByAccount(ctx context.Context, companyID, accountID string, limit, offset int) ([]domain.JournalEntryLine, error) {
	limit, offset = domain.ValidatePagination(limit, offset)
	return uc.journalRepo.ListLinesByAccount(ctx, companyID, accountID, limit, offset)
}

// GetTransaction retrieves a transaction.
func (uc *LedgerQueryUseCase) GetTransaction(ctx context.Context, companyID, id string) (*domain.Transaction, error) {
	return uc.transactionRepo.GetByID(ctx, companyID, id)
}

// BalanceAsOf returns an account balance as of the end of the given day.
func (uc *LedgerQueryUseCase) BalanceAsOf(ctx context.Context, companyID, accountID string, at time.Time) (decimal.Decimal, error) {
	return uc.balance.BalanceAsOf(ctx, companyID, accountID, at)
}
