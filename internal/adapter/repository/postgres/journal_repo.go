package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

const entryColumns = `id, company_id, transaction_id, entry_number, entry_date, fiscal_period_id, type, status,
	total_debit::text, total_credit::text, memo, auto_reverse_date, posted_at, posted_by, voided_at,
	voided_by, void_reason, reversal_of_entry_id, reversed_by_entry_id, created_by, created_at, updated_at`

const lineColumns = `id, journal_entry_id, company_id, account_id, type, amount::text, exchange_rate::text,
	base_amount::text, description, contact_id, department_id, project_id, class_id, location_id,
	tax_rate_id, tax_amount::text, reconciliation_id, is_reconciled, line_number, created_at`

// JournalRepository implements usecase.JournalRepository.
type JournalRepository struct {
	db DB
}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository(db DB) *JournalRepository {
	return &JournalRepository{db: db}
}

// Create stores the entry header and its lines.
func (r *JournalRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.JournalEntry) error {
	q := querier(r.db, tx)
	_, err := q.Exec(ctx, `
		INSERT INTO journal_entries (id, company_id, transaction_id, entry_number, entry_date, fiscal_period_id,
			type, status, total_debit, total_credit, memo, auto_reverse_date, posted_at, posted_by,
			reversal_of_entry_id, reversed_by_entry_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		entry.ID, entry.CompanyID, entry.TransactionID, entry.EntryNumber, entry.EntryDate, entry.FiscalPeriodID,
		string(entry.Type), string(entry.Status), decimalToNumeric(entry.TotalDebit), decimalToNumeric(entry.TotalCredit),
		entry.Memo, entry.AutoReverseDate, entry.PostedAt, entry.PostedBy,
		entry.ReversalOfEntryID, entry.ReversedByEntryID, entry.CreatedBy, entry.CreatedAt, entry.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateNumber
	}
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}

	for i := range entry.Lines {
		l := &entry.Lines[i]
		d := l.Dimensions
		_, err := q.Exec(ctx, `
			INSERT INTO journal_entry_lines (id, journal_entry_id, company_id, account_id, type, amount,
				exchange_rate, base_amount, description, contact_id, department_id, project_id, class_id,
				location_id, tax_rate_id, tax_amount, reconciliation_id, is_reconciled, line_number, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
			l.ID, entry.ID, l.CompanyID, l.AccountID, string(l.Type), decimalToNumeric(l.Amount),
			decimalToNumeric(l.ExchangeRate), decimalToNumeric(l.BaseAmount), l.Description,
			d.ContactID, d.DepartmentID, d.ProjectID, d.ClassID, d.LocationID,
			l.TaxRateID, decimalToNumeric(l.TaxAmount), l.ReconciliationID, l.IsReconciled, l.LineNumber, l.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert journal entry line %d: %w", l.LineNumber, err)
		}
	}
	return nil
}

// GetByID retrieves an entry with its lines.
func (r *JournalRepository) GetByID(ctx context.Context, companyID, id string) (*domain.JournalEntry, error) {
	return r.get(ctx, r.db, `SELECT `+entryColumns+` FROM journal_entries WHERE company_id = $1 AND id = $2`, companyID, id)
}

// GetForUpdate retrieves an entry with its lines and locks the header row.
func (r *JournalRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, companyID, id string) (*domain.JournalEntry, error) {
	return r.get(ctx, querier(r.db, tx), `SELECT `+entryColumns+` FROM journal_entries
		WHERE company_id = $1 AND id = $2 FOR UPDATE`, companyID, id)
}

func (r *JournalRepository) get(ctx context.Context, q DB, sql string, args ...any) (*domain.JournalEntry, error) {
	entry, err := scanEntry(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := attachLines(ctx, q, []*domain.JournalEntry{entry}); err != nil {
		return nil, err
	}
	return entry, nil
}

// Update persists header fields.
func (r *JournalRepository) Update(ctx context.Context, tx usecase.Transaction, entry *domain.JournalEntry) error {
	tag, err := querier(r.db, tx).Exec(ctx, `
		UPDATE journal_entries SET
			status = $2, total_debit = $3, total_credit = $4, memo = $5, auto_reverse_date = $6,
			posted_at = $7, posted_by = $8, voided_at = $9, voided_by = $10, void_reason = $11,
			reversal_of_entry_id = $12, reversed_by_entry_id = $13, updated_at = $14
		WHERE id = $1`,
		entry.ID, string(entry.Status), decimalToNumeric(entry.TotalDebit), decimalToNumeric(entry.TotalCredit),
		entry.Memo, entry.AutoReverseDate, entry.PostedAt, entry.PostedBy, entry.VoidedAt, entry.VoidedBy,
		entry.VoidReason, entry.ReversalOfEntryID, entry.ReversedByEntryID, entry.UpdatedAt,
	)
	return rowsAffectedOr(tag, err, domain.ErrEntryNotFound)
}

// DeleteLine removes one line of an entry.
func (r *JournalRepository) DeleteLine(ctx context.Context, tx usecase.Transaction, entryID, lineID string) error {
	tag, err := querier(r.db, tx).Exec(ctx,
		`DELETE FROM journal_entry_lines WHERE journal_entry_id = $1 AND id = $2`, entryID, lineID,
	)
	return rowsAffectedOr(tag, err, domain.ErrLineNotFound)
}

// ListByTransaction returns the entries of a transaction in date order.
func (r *JournalRepository) ListByTransaction(ctx context.Context, tx usecase.Transaction, companyID, transactionID string) ([]*domain.JournalEntry, error) {
	return r.list(ctx, querier(r.db, tx), `SELECT `+entryColumns+` FROM journal_entries
		WHERE company_id = $1 AND transaction_id = $2
		ORDER BY entry_date, entry_number`, companyID, transactionID)
}

// ListPostedInRange returns posted entries dated within [from, to].
func (r *JournalRepository) ListPostedInRange(ctx context.Context, companyID string, from, to time.Time) ([]*domain.JournalEntry, error) {
	return r.list(ctx, r.db, `SELECT `+entryColumns+` FROM journal_entries
		WHERE company_id = $1 AND status = 'posted' AND entry_date BETWEEN $2 AND $3
		ORDER BY entry_date, entry_number`, companyID, domain.DateOf(from), domain.DateOf(to))
}

func (r *JournalRepository) list(ctx context.Context, q DB, sql string, args ...any) ([]*domain.JournalEntry, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var entries []*domain.JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachLines(ctx, q, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SumPosted totals base amounts of posted lines for an account, optionally up to asOf.
func (r *JournalRepository) SumPosted(ctx context.Context, tx usecase.Transaction, accountID string, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var until any
	if asOf != nil {
		until = domain.DateOf(*asOf)
	}
	return sumRow(querier(r.db, tx).QueryRow(ctx, `
		SELECT COALESCE(SUM(l.base_amount) FILTER (WHERE l.type = 'debit'), 0)::text,
		       COALESCE(SUM(l.base_amount) FILTER (WHERE l.type = 'credit'), 0)::text
		FROM journal_entry_lines l
		JOIN journal_entries e ON e.id = l.journal_entry_id
		WHERE l.account_id = $1 AND e.status = 'posted' AND ($2::date IS NULL OR e.entry_date <= $2::date)`,
		accountID, until))
}

// SumPostedCompany totals base amounts of every posted line of a company.
func (r *JournalRepository) SumPostedCompany(ctx context.Context, companyID string) (decimal.Decimal, decimal.Decimal, error) {
	return sumRow(r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(l.base_amount) FILTER (WHERE l.type = 'debit'), 0)::text,
		       COALESCE(SUM(l.base_amount) FILTER (WHERE l.type = 'credit'), 0)::text
		FROM journal_entry_lines l
		JOIN journal_entries e ON e.id = l.journal_entry_id
		WHERE e.company_id = $1 AND e.status = 'posted'`, companyID))
}

func sumRow(row pgx.Row) (decimal.Decimal, decimal.Decimal, error) {
	var debitText, creditText string
	if err := row.Scan(&debitText, &creditText); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	var debit, credit decimal.Decimal
	if err := parseDecimals([]string{debitText, creditText}, &debit, &credit); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return debit, credit, nil
}

// ListLinesByAccount pages through posted lines of an account.
func (r *JournalRepository) ListLinesByAccount(ctx context.Context, companyID, accountID string, limit, offset int) ([]domain.JournalEntryLine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT l.id, l.journal_entry_id, l.company_id, l.account_id, l.type, l.amount::text, l.exchange_rate::text,
		       l.base_amount::text, l.description, l.contact_id, l.department_id, l.project_id, l.class_id,
		       l.location_id, l.tax_rate_id, l.tax_amount::text, l.reconciliation_id, l.is_reconciled,
		       l.line_number, l.created_at
		FROM journal_entry_lines l
		JOIN journal_entries e ON e.id = l.journal_entry_id
		WHERE e.company_id = $1 AND l.account_id = $2 AND e.status = 'posted'
		ORDER BY e.entry_date, e.entry_number, l.line_number
		LIMIT $3 OFFSET $4`, companyID, accountID, limitOrAll(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.JournalEntryLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// NextEntryNumber allocates the next JE-000001 style number for a company.
func (r *JournalRepository) NextEntryNumber(ctx context.Context, tx usecase.Transaction, companyID string) (string, error) {
	var n int64
	err := querier(r.db, tx).QueryRow(ctx, `
		INSERT INTO entry_number_sequences (company_id, last_value) VALUES ($1, 1)
		ON CONFLICT (company_id) DO UPDATE SET last_value = entry_number_sequences.last_value + 1
		RETURNING last_value`, companyID).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("allocate entry number: %w", err)
	}
	return fmt.Sprintf("JE-%06d", n), nil
}

func attachLines(ctx context.Context, q DB, entries []*domain.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	byID := make(map[string]*domain.JournalEntry, len(entries))
	ids := make([]string, len(entries))
	for i, e := range entries {
		byID[e.ID] = e
		ids[i] = e.ID
	}

	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM journal_entry_lines
		WHERE journal_entry_id = ANY($1) ORDER BY journal_entry_id, line_number`, ids)
	if err != nil {
		return fmt.Errorf("load journal entry lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return err
		}
		if e, ok := byID[l.JournalEntryID]; ok {
			e.Lines = append(e.Lines, l)
		}
	}
	return rows.Err()
}

func scanEntry(row pgx.Row) (*domain.JournalEntry, error) {
	var (
		e             domain.JournalEntry
		debit, credit string
	)
	err := row.Scan(&e.ID, &e.CompanyID, &e.TransactionID, &e.EntryNumber, &e.EntryDate, &e.FiscalPeriodID,
		&e.Type, &e.Status, &debit, &credit, &e.Memo, &e.AutoReverseDate, &e.PostedAt, &e.PostedBy,
		&e.VoidedAt, &e.VoidedBy, &e.VoidReason, &e.ReversalOfEntryID, &e.ReversedByEntryID,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := parseDecimals([]string{debit, credit}, &e.TotalDebit, &e.TotalCredit); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanLine(row pgx.Row) (domain.JournalEntryLine, error) {
	var (
		l                       domain.JournalEntryLine
		amount, rate, base, tax string
	)
	d := &l.Dimensions
	err := row.Scan(&l.ID, &l.JournalEntryID, &l.CompanyID, &l.AccountID, &l.Type, &amount, &rate, &base,
		&l.Description, &d.ContactID, &d.DepartmentID, &d.ProjectID, &d.ClassID, &d.LocationID,
		&l.TaxRateID, &tax, &l.ReconciliationID, &l.IsReconciled, &l.LineNumber, &l.CreatedAt)
	if err != nil {
		return l, err
	}
	err = parseDecimals([]string{amount, rate, base, tax}, &l.Amount, &l.ExchangeRate, &l.BaseAmount, &l.TaxAmount)
	return l, err
}
