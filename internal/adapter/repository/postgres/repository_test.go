package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
)

var testNow = time.Date(2024, time.January, 10, 9, 30, 0, 0, time.UTC)

func columns(list string) []string {
	parts := strings.Split(list, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p), "::text"))
	}
	return parts
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func stmt(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

func TestAccountRepositoryGetByID(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(stmt("FROM accounts WHERE company_id = $1 AND id = $2")).
		WithArgs("co-1", "acc-1").
		WillReturnRows(mock.NewRows(columns(accountColumns)).AddRow(
			"acc-1", "co-1", nil, "4000", "Revenue", domain.AccountTypeRevenue, domain.NormalCredit, "USD",
			"0.0000", "1200.5000", testNow, testNow, nil,
		))

	account, err := NewAccountRepository(mock).GetByID(context.Background(), "co-1", "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !account.CurrentBalance.Equal(decimal.RequireFromString("1200.5")) {
		t.Fatalf("expected balance 1200.5, got %s", account.CurrentBalance)
	}
	if account.NormalBalance != domain.NormalCredit || account.IsDeleted() {
		t.Fatalf("unexpected account: %+v", account)
	}
	assertExpectations(t, mock)
}

func TestAccountRepositoryGetByIDNotFound(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(stmt("FROM accounts WHERE company_id = $1 AND id = $2")).
		WithArgs("co-1", "missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := NewAccountRepository(mock).GetByID(context.Background(), "co-1", "missing")
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountRepositoryCreateDuplicateCode(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(stmt("INSERT INTO accounts")).
		WithArgs(anyArgs(12)...).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := NewAccountRepository(mock).Create(context.Background(), nil, &domain.Account{
		ID: "acc-2", CompanyID: "co-1", Code: "1000", Name: "Petty Cash",
		Type: domain.AccountTypeAsset, NormalBalance: domain.NormalDebit, Currency: "USD",
	})
	if !errors.Is(err, domain.ErrDuplicateNumber) {
		t.Fatalf("expected ErrDuplicateNumber, got %v", err)
	}
}

func TestAccountRepositoryUpdateBalanceUsesTransaction(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec(stmt("UPDATE accounts SET current_balance = $2")).
		WithArgs("acc-1", pgxmock.AnyArg(), testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(stmt("UPDATE accounts SET current_balance = $2")).
		WithArgs("gone", pgxmock.AnyArg(), testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := newTxManagerWithPool(mock).Begin(ctx)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	repo := NewAccountRepository(mock)
	if err := repo.UpdateBalance(ctx, tx, "acc-1", decimal.RequireFromString("10.5"), testNow); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := repo.UpdateBalance(ctx, tx, "gone", decimal.Zero, testNow); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	assertExpectations(t, mock)
}

func TestTransactionRepositoryCreateDuplicateNumber(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(stmt("INSERT INTO transactions")).
		WithArgs(anyArgs(21)...).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := NewTransactionRepository(mock).Create(context.Background(), nil, &domain.Transaction{
		ID: "txn-2", CompanyID: "co-1", Type: domain.TxTypeInvoice, Number: "INV-1",
	})
	if !errors.Is(err, domain.ErrDuplicateNumber) || !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected duplicate number conflict, got %v", err)
	}
}

func TestJournalRepositoryNextEntryNumber(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(stmt("INSERT INTO entry_number_sequences")).
		WithArgs("co-1").
		WillReturnRows(mock.NewRows([]string{"last_value"}).AddRow(int64(42)))

	number, err := NewJournalRepository(mock).NextEntryNumber(context.Background(), nil, "co-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if number != "JE-000042" {
		t.Fatalf("expected JE-000042, got %s", number)
	}
}

func TestJournalRepositoryGetByIDLoadsLines(t *testing.T) {
	mock := newMockPool(t)
	posted, actor := testNow, "clerk"
	mock.ExpectQuery(stmt("FROM journal_entries WHERE company_id = $1 AND id = $2")).
		WithArgs("co-1", "je-1").
		WillReturnRows(mock.NewRows(columns(entryColumns)).AddRow(
			"je-1", "co-1", "txn-1", "JE-000001", testNow, "per-1", domain.EntryStandard, domain.EntryPosted,
			"100.0000", "100.0000", "", nil, &posted, &actor, nil, nil, nil, nil, nil, "clerk", testNow, testNow,
		))
	mock.ExpectQuery(stmt("FROM journal_entry_lines WHERE journal_entry_id = ANY($1)")).
		WithArgs([]string{"je-1"}).
		WillReturnRows(mock.NewRows(columns(lineColumns)).
			AddRow("ln-1", "je-1", "co-1", "acc-1", domain.Debit, "100.0000", "1.0000000000", "100.0000", "",
				nil, nil, nil, nil, nil, nil, "0.0000", nil, false, 1, testNow).
			AddRow("ln-2", "je-1", "co-1", "acc-2", domain.Credit, "100.0000", "1.0000000000", "100.0000", "",
				nil, nil, nil, nil, nil, nil, "0.0000", nil, false, 2, testNow))

	entry, err := NewJournalRepository(mock).GetByID(context.Background(), "co-1", "je-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entry.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(entry.Lines))
	}
	if !entry.IsBalanced() || !entry.LinesBalanced() {
		t.Fatalf("expected balanced entry, got debit=%s credit=%s", entry.TotalDebit, entry.TotalCredit)
	}
	if entry.PostedBy == nil || *entry.PostedBy != "clerk" {
		t.Fatalf("expected posted_by clerk, got %v", entry.PostedBy)
	}
	assertExpectations(t, mock)
}

func TestJournalRepositorySumPosted(t *testing.T) {
	mock := newMockPool(t)
	asOf := time.Date(2024, time.January, 31, 18, 0, 0, 0, time.UTC)
	mock.ExpectQuery(stmt("FROM journal_entry_lines l")).
		WithArgs("acc-1", domain.DateOf(asOf)).
		WillReturnRows(mock.NewRows([]string{"debit", "credit"}).AddRow("1500.5000", "90.0000"))

	debit, credit, err := NewJournalRepository(mock).SumPosted(context.Background(), nil, "acc-1", &asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !debit.Equal(decimal.RequireFromString("1500.5")) || !credit.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("unexpected sums debit=%s credit=%s", debit, credit)
	}
}

func TestJournalRepositoryDeleteLineNotFound(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(stmt("DELETE FROM journal_entry_lines")).
		WithArgs("je-1", "ln-9").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := NewJournalRepository(mock).DeleteLine(context.Background(), nil, "je-1", "ln-9")
	if !errors.Is(err, domain.ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound, got %v", err)
	}
}

func TestPeriodRepositoryCreateRejectsOverlap(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(stmt("pg_advisory_xact_lock")).
		WithArgs("co-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(stmt("SELECT EXISTS")).
		WithArgs(anyArgs(3)...).
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(true))

	err := NewPeriodRepository(mock).Create(context.Background(), nil, &domain.FiscalPeriod{
		ID:        "per-9",
		CompanyID: "co-1",
		StartDate: time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC),
		Status:    domain.PeriodOpen,
	})
	if !errors.Is(err, domain.ErrPeriodOverlap) {
		t.Fatalf("expected ErrPeriodOverlap, got %v", err)
	}
	assertExpectations(t, mock)
}

func TestAuditRepositoryLockHead(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(stmt("INSERT INTO audit_chain_heads")).
		WithArgs("co-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(stmt("FROM audit_chain_heads WHERE company_id = $1 FOR UPDATE")).
		WithArgs("co-1").
		WillReturnRows(mock.NewRows([]string{"company_id", "last_sequence", "last_log_id", "last_hash"}).
			AddRow("co-1", int64(7), "log-7", "abc123"))

	head, err := NewAuditRepository(mock).LockHead(context.Background(), nil, "co-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if head.LastSequence != 7 || head.NextPrevious() != "abc123" {
		t.Fatalf("unexpected head: %+v", head)
	}
	assertExpectations(t, mock)
}

func TestAuditRepositoryHeadOfEmptyChain(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(stmt("FROM audit_chain_heads WHERE company_id = $1")).
		WithArgs("co-new").
		WillReturnError(pgx.ErrNoRows)

	head, err := NewAuditRepository(mock).Head(context.Background(), "co-new")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if head.CompanyID != "co-new" || head.NextPrevious() != domain.GenesisHash {
		t.Fatalf("expected genesis head, got %+v", head)
	}
}

func TestAuditRepositoryAppendDetectsMovedHead(t *testing.T) {
	mock := newMockPool(t)
	log := sealedAuditLog(t)
	mock.ExpectExec(stmt("INSERT INTO audit_logs")).
		WithArgs(anyArgs(16)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(stmt("UPDATE audit_chain_heads")).
		WithArgs("co-1", int64(1), log.ID, log.Hash).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewAuditRepository(mock).Append(context.Background(), nil, log)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	assertExpectations(t, mock)
}

func TestAuditRepositoryRecordVerifiesAfterRoundTrip(t *testing.T) {
	log := sealedAuditLog(t)
	newValues, err := json.Marshal(log.NewValues)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	tampered, err := json.Marshal(domain.JSON{"name": "Other", "current_balance": "0.0000", "line_count": 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	mock := newMockPool(t)
	row := func(values []byte) *pgxmock.Rows {
		return mock.NewRows(columns(auditColumns)).AddRow(
			log.ID, log.CompanyID, log.Sequence, log.Auditable.Kind, log.Auditable.ID, log.Event,
			nil, values, []string{}, log.ActorID, nil, nil, log.BatchID, log.PreviousHash, log.Hash, log.CreatedAt,
		)
	}
	mock.ExpectQuery(stmt("FROM audit_logs WHERE company_id = $1 AND sequence = $2")).
		WithArgs("co-1", int64(1)).
		WillReturnRows(row(newValues))
	mock.ExpectQuery(stmt("FROM audit_logs WHERE company_id = $1 AND sequence = $2")).
		WithArgs("co-1", int64(1)).
		WillReturnRows(row(tampered))

	repo := NewAuditRepository(mock)
	stored, err := repo.GetBySequence(context.Background(), "co-1", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stored.VerifyIntegrity() {
		t.Fatalf("expected stored record to verify")
	}

	edited, err := repo.GetBySequence(context.Background(), "co-1", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edited.VerifyIntegrity() {
		t.Fatalf("expected edited record to fail verification")
	}
}

func sealedAuditLog(t *testing.T) *domain.AuditLog {
	t.Helper()
	log := &domain.AuditLog{
		ID:        "log-1",
		CompanyID: "co-1",
		Sequence:  1,
		Auditable: domain.Ref(domain.KindAccount, "acc-1"),
		Event:     domain.AuditCreated,
		NewValues: domain.JSON{"name": "Revenue", "current_balance": "0.0000", "line_count": 2},
		ActorID:   "setup",
		BatchID:   "batch-1",
		CreatedAt: testNow.Add(123456789 * time.Nanosecond),
	}
	if err := log.Seal(domain.GenesisHash); err != nil {
		t.Fatalf("seal: %v", err)
	}
	return log
}

func TestRuleRepositoryListActiveParsesCondition(t *testing.T) {
	mock := newMockPool(t)
	condition := []byte(`{"op":"and","args":[{"op":"eq","field":"type","value":"invoice"},{"op":"gte","field":"total_amount","value":"1000"}]}`)
	mock.ExpectQuery(stmt("FROM anomaly_rules WHERE company_id = $1 AND active")).
		WithArgs("co-1").
		WillReturnRows(mock.NewRows([]string{"id", "company_id", "name", "description", "severity", "confidence",
			"active", "condition", "created_at", "updated_at"}).
			AddRow("rule-1", "co-1", "Large invoices", "", domain.SeverityWarning, 0.8, true, condition, testNow, testNow))

	rules, err := NewRuleRepository(mock).ListActive(context.Background(), "co-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	ok, err := rules[0].Condition.Eval(domain.TransactionFacts(&domain.Transaction{
		Type:        domain.TxTypeInvoice,
		TotalAmount: decimal.NewFromInt(1500),
	}))
	if err != nil || !ok {
		t.Fatalf("expected rule to match, ok=%v err=%v", ok, err)
	}
}

func TestAnomalyRepositoryGetForUpdateNotFound(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(stmt("FROM anomaly_detections")).
		WithArgs("co-1", "an-404").
		WillReturnError(pgx.ErrNoRows)

	_, err := NewAnomalyRepository(mock).GetForUpdate(context.Background(), nil, "co-1", "an-404")
	if !errors.Is(err, domain.ErrAnomalyNotFound) {
		t.Fatalf("expected ErrAnomalyNotFound, got %v", err)
	}
}

func TestOutboxRepositoryGetUnpublished(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(stmt("FROM outbox_events")).
		WithArgs(100).
		WillReturnRows(mock.NewRows([]string{"id", "company_id", "aggregate_id", "aggregate_type", "event_type",
			"payload", "created_at", "published", "published_at"}).
			AddRow("evt-1", "co-1", "je-1", domain.AggregateTypeJournalEntry, domain.EventTypeEntryPosted,
				[]byte(`{"entry_id":"je-1"}`), testNow, false, nil))

	events, err := NewOutboxRepository(mock).GetUnpublished(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Payload["entry_id"] != "je-1" {
		t.Fatalf("unexpected events: %+v", events)
	}
}
