package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

const accountColumns = `id, company_id, parent_id, code, name, type, normal_balance, currency,
	opening_balance::text, current_balance::text, created_at, updated_at, deleted_at`

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	db DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create creates a new account.
func (r *AccountRepository) Create(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	_, err := querier(r.db, tx).Exec(ctx, `
		INSERT INTO accounts (id, company_id, parent_id, code, name, type, normal_balance, currency,
			opening_balance, current_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		account.ID, account.CompanyID, account.ParentID, account.Code, account.Name,
		string(account.Type), string(account.NormalBalance), account.Currency,
		decimalToNumeric(account.OpeningBalance), decimalToNumeric(account.CurrentBalance),
		account.CreatedAt, account.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateNumber
	}
	return err
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, companyID, id string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id = $1 AND id = $2`, companyID, id)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	return account, err
}

// GetByIDsForUpdate locks the rows in the order given.
func (r *AccountRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, companyID string, ids []string) ([]*domain.Account, error) {
	q := querier(r.db, tx)
	accounts := make([]*domain.Account, 0, len(ids))
	// One statement per id keeps the lock order deterministic.
	for _, id := range ids {
		row := q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id = $1 AND id = $2 FOR UPDATE`, companyID, id)
		account, err := scanAccount(row)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// UpdateBalance updates the cached balance of an account.
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx usecase.Transaction, id string, balance decimal.Decimal, updatedAt time.Time) error {
	tag, err := querier(r.db, tx).Exec(ctx,
		`UPDATE accounts SET current_balance = $2, updated_at = $3 WHERE id = $1`,
		id, decimalToNumeric(balance), updatedAt,
	)
	return rowsAffectedOr(tag, err, domain.ErrAccountNotFound)
}

// SoftDelete marks an account deleted.
func (r *AccountRepository) SoftDelete(ctx context.Context, tx usecase.Transaction, id string, deletedAt time.Time) error {
	tag, err := querier(r.db, tx).Exec(ctx,
		`UPDATE accounts SET deleted_at = $2, updated_at = $2 WHERE id = $1`,
		id, deletedAt,
	)
	return rowsAffectedOr(tag, err, domain.ErrAccountNotFound)
}

// List lists live accounts ordered by code.
func (r *AccountRepository) List(ctx context.Context, companyID string, limit, offset int) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE company_id = $1 AND deleted_at IS NULL
		ORDER BY code, id LIMIT $2 OFFSET $3`, companyID, limitOrAll(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a                domain.Account
		opening, current string
	)
	err := row.Scan(&a.ID, &a.CompanyID, &a.ParentID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.Currency,
		&opening, &current, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt)
	if err != nil {
		return nil, err
	}
	if err := parseDecimals([]string{opening, current}, &a.OpeningBalance, &a.CurrentBalance); err != nil {
		return nil, err
	}
	return &a, nil
}
