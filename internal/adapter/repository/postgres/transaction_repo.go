package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

const transactionColumns = `id, company_id, type, number, transaction_date, due_date, posting_date,
	fiscal_period_id, contact_id, currency, exchange_rate::text, subtotal::text, tax_total::text,
	total_amount::text, status, memo, void_reason, voided_at, voided_by, reversal_of_id,
	reversed_by_id, created_by, created_at, updated_at, deleted_at`

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	db DB
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a transaction; (company, type, number) must be unique.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	_, err := querier(r.db, tx).Exec(ctx, `
		INSERT INTO transactions (id, company_id, type, number, transaction_date, due_date, posting_date,
			fiscal_period_id, contact_id, currency, exchange_rate, subtotal, tax_total, total_amount,
			status, memo, reversal_of_id, reversed_by_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		t.ID, t.CompanyID, string(t.Type), t.Number, t.TransactionDate, t.DueDate, t.PostingDate,
		t.FiscalPeriodID, t.ContactID, t.Currency, decimalToNumeric(t.ExchangeRate),
		decimalToNumeric(t.Subtotal), decimalToNumeric(t.TaxTotal), decimalToNumeric(t.TotalAmount),
		string(t.Status), t.Memo, t.ReversalOfID, t.ReversedByID, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateNumber
	}
	return err
}

// GetByID retrieves a live transaction.
func (r *TransactionRepository) GetByID(ctx context.Context, companyID, id string) (*domain.Transaction, error) {
	return r.get(ctx, r.db, `SELECT `+transactionColumns+` FROM transactions
		WHERE company_id = $1 AND id = $2 AND deleted_at IS NULL`, companyID, id)
}

// GetForUpdate retrieves a live transaction and locks its row.
func (r *TransactionRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, companyID, id string) (*domain.Transaction, error) {
	return r.get(ctx, querier(r.db, tx), `SELECT `+transactionColumns+` FROM transactions
		WHERE company_id = $1 AND id = $2 AND deleted_at IS NULL FOR UPDATE`, companyID, id)
}

func (r *TransactionRepository) get(ctx context.Context, q DB, sql string, args ...any) (*domain.Transaction, error) {
	t, err := scanTransaction(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	return t, err
}

// Update persists every mutable column.
func (r *TransactionRepository) Update(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	tag, err := querier(r.db, tx).Exec(ctx, `
		UPDATE transactions SET
			due_date = $2, posting_date = $3, contact_id = $4, subtotal = $5, tax_total = $6,
			total_amount = $7, status = $8, memo = $9, void_reason = $10, voided_at = $11,
			voided_by = $12, reversal_of_id = $13, reversed_by_id = $14, updated_at = $15, deleted_at = $16
		WHERE id = $1`,
		t.ID, t.DueDate, t.PostingDate, t.ContactID, decimalToNumeric(t.Subtotal),
		decimalToNumeric(t.TaxTotal), decimalToNumeric(t.TotalAmount), string(t.Status), t.Memo,
		t.VoidReason, t.VoidedAt, t.VoidedBy, t.ReversalOfID, t.ReversedByID, t.UpdatedAt, t.DeletedAt,
	)
	return rowsAffectedOr(tag, err, domain.ErrTransactionNotFound)
}

// ListInRange returns live transactions dated within [from, to].
func (r *TransactionRepository) ListInRange(ctx context.Context, companyID string, from, to time.Time) ([]*domain.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE company_id = $1 AND deleted_at IS NULL AND transaction_date BETWEEN $2 AND $3
		ORDER BY transaction_date, number, id`, companyID, domain.DateOf(from), domain.DateOf(to))
}

// ListPostedBefore returns posted live transactions dated before the given day.
func (r *TransactionRepository) ListPostedBefore(ctx context.Context, companyID string, before time.Time) ([]*domain.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE company_id = $1 AND deleted_at IS NULL AND status = 'posted' AND transaction_date < $2
		ORDER BY transaction_date, number, id`, companyID, domain.DateOf(before))
}

func (r *TransactionRepository) list(ctx context.Context, sql string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t                          domain.Transaction
		rate, subtotal, tax, total string
	)
	err := row.Scan(&t.ID, &t.CompanyID, &t.Type, &t.Number, &t.TransactionDate, &t.DueDate, &t.PostingDate,
		&t.FiscalPeriodID, &t.ContactID, &t.Currency, &rate, &subtotal, &tax, &total, &t.Status, &t.Memo,
		&t.VoidReason, &t.VoidedAt, &t.VoidedBy, &t.ReversalOfID, &t.ReversedByID, &t.CreatedBy,
		&t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if err != nil {
		return nil, err
	}
	if err := parseDecimals([]string{rate, subtotal, tax, total},
		&t.ExchangeRate, &t.Subtotal, &t.TaxTotal, &t.TotalAmount); err != nil {
		return nil, err
	}
	return &t, nil
}
