package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
)

// ChartUseCase manages the chart of accounts and fiscal periods.
type ChartUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	periodRepo  PeriodRepository
	audit       *AuditUseCase
	idGen       IDGenerator
	clock       Clock
}

// NewChartUseCase creates a new ChartUseCase.
func NewChartUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	periodRepo PeriodRepository,
	audit *AuditUseCase,
	idGen IDGenerator,
	clock Clock,
) *ChartUseCase {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ChartUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		periodRepo:  periodRepo,
		audit:       audit,
		idGen:       idGen,
		clock:       clock,
	}
}

// CreateAccountInput represents input for creating an account.
type CreateAccountInput struct {
	CompanyID string
	ParentID  *string
	Code      string
	Name      string
	Type      domain.AccountType
	// NormalBalance defaults from Type.
	NormalBalance  domain.NormalBalance
	Currency       string
	OpeningBalance decimal.Decimal
	ActorID        string
}

// CreateAccount creates a new account.
func (uc *ChartUseCase) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	if input.CompanyID == "" {
		return nil, domain.ErrCompanyRequired
	}
	if err := domain.ValidateAccountName(input.Name); err != nil {
		return nil, err
	}
	if !input.Type.Valid() {
		return nil, domain.ErrInvalidAccountType
	}
	currency := strings.ToUpper(input.Currency)
	if err := domain.ValidateCurrency(currency); err != nil {
		return nil, err
	}
	if err := domain.ValidateScale(input.OpeningBalance); err != nil {
		return nil, err
	}
	normal := input.NormalBalance
	if normal == "" {
		normal = input.Type.DefaultNormalBalance()
	}

	now := uc.clock.Now()
	account := &domain.Account{
		ID:             uc.idGen.Generate(),
		CompanyID:      input.CompanyID,
		ParentID:       input.ParentID,
		Code:           strings.TrimSpace(input.Code),
		Name:           strings.TrimSpace(input.Name),
		Type:           input.Type,
		NormalBalance:  normal,
		Currency:       currency,
		OpeningBalance: input.OpeningBalance,
		CurrentBalance: input.OpeningBalance,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := uc.inTx(ctx, func(ctx context.Context, tx Transaction) error {
		if err := uc.accountRepo.Create(ctx, tx, account); err != nil {
			return err
		}
		batch := uc.audit.batch(tx, input.CompanyID, actorOrSystem(input.ActorID))
		return batch.record(ctx, domain.Ref(domain.KindAccount, account.ID), domain.AuditCreated, nil, accountState(account))
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccount retrieves an account by ID.
func (uc *ChartUseCase) GetAccount(ctx context.Context, companyID, id string) (*domain.Account, error) {
	return uc.accountRepo.GetByID(ctx, companyID, id)
}

// ListAccounts lists accounts ordered by code with pagination.
func (uc *ChartUseCase) ListAccounts(ctx context.Context, companyID string, limit, offset int) ([]*domain.Account, error) {
	limit, offset = domain.ValidatePagination(limit, offset)
	return uc.accountRepo.List(ctx, companyID, limit, offset)
}

// SoftDeleteAccount hides an account from new postings. Its history stays.
func (uc *ChartUseCase) SoftDeleteAccount(ctx context.Context, companyID, id, actorID string) error {
	return uc.inTx(ctx, func(ctx context.Context, tx Transaction) error {
		accounts, err := uc.accountRepo.GetByIDsForUpdate(ctx, tx, companyID, []string{id})
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			return domain.ErrAccountNotFound
		}
		account := accounts[0]
		if account.IsDeleted() {
			return domain.ErrAccountDeleted
		}

		old := accountState(account)
		now := uc.clock.Now()
		if err := uc.accountRepo.SoftDelete(ctx, tx, id, now); err != nil {
			return err
		}
		account.DeletedAt = &now
		batch := uc.audit.batch(tx, companyID, actorOrSystem(actorID))
		return batch.record(ctx, domain.Ref(domain.KindAccount, id), domain.AuditDeleted, old, accountState(account))
	})
}

// CreatePeriodInput represents input for creating a fiscal period.
type CreatePeriodInput struct {
	CompanyID string
	Name      string
	StartDate time.Time
	EndDate   time.Time
	ActorID   string
}

// CreatePeriod creates an open fiscal period that overlaps no other.
func (uc *ChartUseCase) CreatePeriod(ctx context.Context, input CreatePeriodInput) (*domain.FiscalPeriod, error) {
	now := uc.clock.Now()
	period := &domain.FiscalPeriod{
		ID:        uc.idGen.Generate(),
		CompanyID: input.CompanyID,
		Name:      input.Name,
		StartDate: domain.DateOf(input.StartDate),
		EndDate:   domain.DateOf(input.EndDate),
		Status:    domain.PeriodOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if period.Name == "" {
		period.Name = period.StartDate.Format("2006-01")
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	err := uc.inTx(ctx, func(ctx context.Context, tx Transaction) error {
		existing, err := uc.periodRepo.List(ctx, input.CompanyID)
		if err != nil {
			return err
		}
		for _, p := range existing {
			if p.Overlaps(period) {
				return domain.ErrPeriodOverlap
			}
		}
		if err := uc.periodRepo.Create(ctx, tx, period); err != nil {
			return err
		}
		batch := uc.audit.batch(tx, input.CompanyID, actorOrSystem(input.ActorID))
		return batch.record(ctx, domain.Ref(domain.KindFiscalPeriod, period.ID), domain.AuditCreated, nil, periodState(period))
	})
	if err != nil {
		return nil, err
	}
	return period, nil
}

// GetPeriod retrieves a fiscal period by ID.
func (uc *ChartUseCase) GetPeriod(ctx context.Context, companyID, id string) (*domain.FiscalPeriod, error) {
	return uc.periodRepo.GetByID(ctx, companyID, id)
}

// ListPeriods lists the company periods by start date.
func (uc *ChartUseCase) ListPeriods(ctx context.Context, companyID string) ([]*domain.FiscalPeriod, error) {
	return uc.periodRepo.List(ctx, companyID)
}

func (uc *ChartUseCase) inTx(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := fn(txCtx, tx); err != nil {
		return err
	}
	return tx.Commit(txCtx)
}
