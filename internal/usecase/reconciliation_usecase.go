package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
)

// reconcilePageSize is how many accounts are checked per repository page.
const reconcilePageSize = 500

// ReconciliationUseCase compares cached balances against the journal.
type ReconciliationUseCase struct {
	accountRepo AccountRepository
	journalRepo JournalRepository
	clock       Clock
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(accountRepo AccountRepository, journalRepo JournalRepository, clock Clock) *ReconciliationUseCase {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ReconciliationUseCase{
		accountRepo: accountRepo,
		journalRepo: journalRepo,
		clock:       clock,
	}
}

// ReconciliationResult represents the result of one account check
type ReconciliationResult struct {
	AccountID         string          `json:"account_id"`
	Code              string          `json:"code"`
	RecordedBalance   decimal.Decimal `json:"recorded_balance"`
	CalculatedBalance decimal.Decimal `json:"calculated_balance"`
	Difference        decimal.Decimal `json:"difference"`
	IsReconciled      bool            `json:"is_reconciled"`
}

// ConsistencyReport summarizes a company-wide check.
type ConsistencyReport struct {
	CompanyID          string                  `json:"company_id"`
	TotalAccounts      int                     `json:"total_accounts"`
	ReconciledAccounts int                     `json:"reconciled_accounts"`
	Discrepancies      []*ReconciliationResult `json:"discrepancies"`
	TotalDebits        decimal.Decimal         `json:"total_debits"`
	TotalCredits       decimal.Decimal         `json:"total_credits"`
	LedgerBalanced     bool                    `json:"ledger_balanced"`
	CheckedAt          time.Time               `json:"checked_at"`
}

// Consistent reports whether every account reconciles and the journal balances.
func (r *ConsistencyReport) Consistent() bool {
	return r.LedgerBalanced && len(r.Discrepancies) == 0
}

// ReconcileAccount recomputes one balance without persisting it.
func (uc *ReconciliationUseCase) ReconcileAccount(ctx context.Context, companyID, accountID string) (*ReconciliationResult, error) {
	account, err := uc.accountRepo.GetByID(ctx, companyID, accountID)
	if err != nil {
		return nil, err
	}
	return uc.reconcile(ctx, account)
}

func (uc *ReconciliationUseCase) reconcile(ctx context.Context, account *domain.Account) (*ReconciliationResult, error) {
	debits, credits, err := uc.journalRepo.SumPosted(ctx, nil, account.ID, nil)
	if err != nil {
		return nil, err
	}
	calculated := account.BalanceFrom(debits, credits)
	diff := account.CurrentBalance.Sub(calculated)
	return &ReconciliationResult{
		AccountID:         account.ID,
		Code:              account.Code,
		RecordedBalance:   account.CurrentBalance,
		CalculatedBalance: calculated,
		Difference:        diff,
		IsReconciled:      diff.IsZero(),
	}, nil
}

// CheckConsistency reconciles every account and checks that posted debits
// equal posted credits across the company.
func (uc *ReconciliationUseCase) CheckConsistency(ctx context.Context, companyID string) (*ConsistencyReport, error) {
	if companyID == "" {
		return nil, domain.ErrCompanyRequired
	}
	report := &ConsistencyReport{
		CompanyID:     companyID,
		Discrepancies: make([]*ReconciliationResult, 0),
		CheckedAt:     uc.clock.Now(),
	}

	for offset := 0; ; offset += reconcilePageSize {
		accounts, err := uc.accountRepo.List(ctx, companyID, reconcilePageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, account := range accounts {
			result, err := uc.reconcile(ctx, account)
			if err != nil {
				return nil, fmt.Errorf("failed to reconcile account %s: %w", account.ID, err)
			}
			report.TotalAccounts++
			if result.IsReconciled {
				report.ReconciledAccounts++
			} else {
				report.Discrepancies = append(report.Discrepancies, result)
			}
		}
		if len(accounts) < reconcilePageSize {
			break
		}
	}

	debits, credits, err := uc.journalRepo.SumPostedCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	report.TotalDebits = debits
	report.TotalCredits = credits
	report.LedgerBalanced = debits.Equal(credits)
	return report, nil
}
