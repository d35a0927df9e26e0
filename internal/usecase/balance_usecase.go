package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/infrastructure/metrics"
)

// BalanceUseCase derives cached account balances from posted journal lines.
type BalanceUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	journalRepo JournalRepository
	audit       *AuditUseCase
	clock       Clock
	metrics     *metrics.Metrics
}

// NewBalanceUseCase creates a new BalanceUseCase.
func NewBalanceUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	journalRepo JournalRepository,
	audit *AuditUseCase,
	clock Clock,
	metrics *metrics.Metrics,
) *BalanceUseCase {
	if clock == nil {
		clock = SystemClock{}
	}
	return &BalanceUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		journalRepo: journalRepo,
		audit:       audit,
		clock:       clock,
		metrics:     metrics,
	}
}

// RecomputeBalance recalculates and stores an account's current balance.
// Running it again without new postings changes nothing.
func (uc *BalanceUseCase) RecomputeBalance(ctx context.Context, companyID, accountID string) (decimal.Decimal, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return decimal.Zero, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	accounts, err := uc.accountRepo.GetByIDsForUpdate(txCtx, tx, companyID, []string{accountID})
	if err != nil {
		return decimal.Zero, err
	}
	if len(accounts) == 0 {
		return decimal.Zero, domain.ErrAccountNotFound
	}

	batch := uc.audit.batch(tx, companyID, SystemActor)
	balance, err := uc.recomputeTx(txCtx, tx, batch, accounts[0])
	if err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// recomputeTx stores the balance derived from posted lines visible in tx and
// audits the change. The account row must already be locked.
func (uc *BalanceUseCase) recomputeTx(ctx context.Context, tx Transaction, batch *auditBatch, account *domain.Account) (decimal.Decimal, error) {
	debits, credits, err := uc.journalRepo.SumPosted(ctx, tx, account.ID, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum posted lines for account %s: %w", account.ID, err)
	}
	if uc.metrics != nil {
		uc.metrics.BalanceRecomputations.Inc()
	}

	balance := account.BalanceFrom(debits, credits)
	if balance.Equal(account.CurrentBalance) {
		return balance, nil
	}

	old := balanceState(account)
	now := uc.clock.Now()
	if err := uc.accountRepo.UpdateBalance(ctx, tx, account.ID, balance, now); err != nil {
		return decimal.Zero, err
	}
	account.CurrentBalance = balance
	account.UpdatedAt = now

	ref := domain.Ref(domain.KindAccount, account.ID)
	if err := batch.record(ctx, ref, domain.AuditUpdated, old, balanceState(account)); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// recomputeAccounts locks the accounts in sorted id order and recomputes each.
func (uc *BalanceUseCase) recomputeAccounts(ctx context.Context, tx Transaction, batch *auditBatch, companyID string, ids []string) error {
	ids = sortedUnique(ids)
	if len(ids) == 0 {
		return nil
	}
	accounts, err := uc.accountRepo.GetByIDsForUpdate(ctx, tx, companyID, ids)
	if err != nil {
		return err
	}
	if len(accounts) != len(ids) {
		return domain.ErrAccountNotFound
	}
	for _, a := range accounts {
		if _, err := uc.recomputeTx(ctx, tx, batch, a); err != nil {
			return err
		}
	}
	return nil
}

// BalanceAsOf returns the balance from lines posted on or before at.
func (uc *BalanceUseCase) BalanceAsOf(ctx context.Context, companyID, accountID string, at time.Time) (decimal.Decimal, error) {
	account, err := uc.accountRepo.GetByID(ctx, companyID, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	debits, credits, err := uc.journalRepo.SumPosted(ctx, nil, account.ID, &at)
	if err != nil {
		return decimal.Zero, err
	}
	return account.BalanceFrom(debits, credits), nil
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
