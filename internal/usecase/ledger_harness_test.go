package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/tripleledger/internal/adapter/repository/memory"
	"github.com/iho/tripleledger/internal/anomaly"
	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

const company = "co-1"

type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (g *sequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%06d", g.n)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type ledgerOptions struct {
	engine             *anomaly.Engine
	checkpointInterval int
	retrier            usecase.Retrier
	runLock            usecase.RunLock
	wrapAccounts       func(usecase.AccountRepository) usecase.AccountRepository
	wrapAudit          func(usecase.AuditRepository) usecase.AuditRepository
	wrapOutbox         func(usecase.OutboxRepository) usecase.OutboxRepository
}

type ledgerOption func(*ledgerOptions)

func withEngine(e *anomaly.Engine) ledgerOption {
	return func(o *ledgerOptions) { o.engine = e }
}

func withCheckpointInterval(n int) ledgerOption {
	return func(o *ledgerOptions) { o.checkpointInterval = n }
}

func withRetrier(r usecase.Retrier) ledgerOption {
	return func(o *ledgerOptions) { o.retrier = r }
}

func withRunLock(l usecase.RunLock) ledgerOption {
	return func(o *ledgerOptions) { o.runLock = l }
}

// withAccounts wraps the account repository seen by posting and balances.
func withAccounts(wrap func(usecase.AccountRepository) usecase.AccountRepository) ledgerOption {
	return func(o *ledgerOptions) { o.wrapAccounts = wrap }
}

// withAudit wraps the audit repository behind the audit chain.
func withAudit(wrap func(usecase.AuditRepository) usecase.AuditRepository) ledgerOption {
	return func(o *ledgerOptions) { o.wrapAudit = wrap }
}

// withOutbox wraps the outbox repository seen by posting.
func withOutbox(wrap func(usecase.OutboxRepository) usecase.OutboxRepository) ledgerOption {
	return func(o *ledgerOptions) { o.wrapOutbox = wrap }
}

// testLedger wires every use case to one in-memory store with a company,
// three monthly periods (Dec 2023 to Feb 2024) and a small chart of accounts.
type testLedger struct {
	store *memory.Store
	clock *testClock
	ids   *sequentialIDs

	audit      *usecase.AuditUseCase
	balance    *usecase.BalanceUseCase
	posting    *usecase.PostingUseCase
	documents  *usecase.DocumentUseCase
	chart      *usecase.ChartUseCase
	booksClose *usecase.BooksCloseUseCase
	anomalies  *usecase.AnomalyUseCase
	recon      *usecase.ReconciliationUseCase
	queries    *usecase.LedgerQueryUseCase

	dec, jan, feb                  *domain.FiscalPeriod
	receivable, cash, revenue, fee *domain.Account
}

func newTestLedger(t *testing.T, opts ...ledgerOption) *testLedger {
	t.Helper()

	o := ledgerOptions{engine: anomaly.NewEngine(anomaly.DefaultPolicy())}
	for _, opt := range opts {
		opt(&o)
	}

	s := memory.New()
	clock := &testClock{now: time.Date(2024, time.January, 12, 9, 0, 0, 0, time.UTC)}
	ids := &sequentialIDs{}

	var (
		accounts usecase.AccountRepository = s.Accounts()
		auditLog usecase.AuditRepository   = s.Audit()
		outbox   usecase.OutboxRepository  = s.Outbox()
	)
	if o.wrapAccounts != nil {
		accounts = o.wrapAccounts(accounts)
	}
	if o.wrapAudit != nil {
		auditLog = o.wrapAudit(auditLog)
	}
	if o.wrapOutbox != nil {
		outbox = o.wrapOutbox(outbox)
	}

	audit := usecase.NewAuditUseCase(s, auditLog, ids, clock, o.checkpointInterval, nil)
	balance := usecase.NewBalanceUseCase(s, accounts, s.Journal(), audit, clock, nil)
	posting := usecase.NewPostingUseCase(s, accounts, s.Transactions(), s.Journal(), s.Periods(), outbox, balance, audit, ids, clock, nil).
		WithRetrier(o.retrier)
	booksClose := usecase.NewBooksCloseUseCase(s, s.Periods(), s.Transactions(), s.Journal(), s.Rules(), s.Anomalies(), s.Runs(), s.Outbox(), audit, o.engine, ids, clock, nil)
	if o.runLock != nil {
		booksClose.WithRunLock(o.runLock, 0)
	}

	l := &testLedger{
		store:      s,
		clock:      clock,
		ids:        ids,
		audit:      audit,
		balance:    balance,
		posting:    posting,
		documents:  usecase.NewDocumentUseCase(posting),
		chart:      usecase.NewChartUseCase(s, s.Accounts(), s.Periods(), audit, ids, clock),
		booksClose: booksClose,
		anomalies:  usecase.NewAnomalyUseCase(s, s.Anomalies(), s.Rules(), s.Outbox(), audit, ids, clock, nil),
		recon:      usecase.NewReconciliationUseCase(s.Accounts(), s.Journal(), clock),
		queries:    usecase.NewLedgerQueryUseCase(s.Transactions(), s.Journal(), balance),
	}

	ctx := context.Background()
	l.dec = l.createPeriod(t, ctx, date(2023, time.December, 1), date(2023, time.December, 31))
	l.jan = l.createPeriod(t, ctx, date(2024, time.January, 1), date(2024, time.January, 31))
	l.feb = l.createPeriod(t, ctx, date(2024, time.February, 1), date(2024, time.February, 29))

	l.receivable = l.createAccount(t, ctx, "1100", "Accounts Receivable", domain.AccountTypeAsset)
	l.cash = l.createAccount(t, ctx, "1000", "Cash", domain.AccountTypeAsset)
	l.revenue = l.createAccount(t, ctx, "4000", "Sales Revenue", domain.AccountTypeRevenue)
	l.fee = l.createAccount(t, ctx, "6100", "Bank Fees", domain.AccountTypeExpense)
	return l
}

func (l *testLedger) createPeriod(t *testing.T, ctx context.Context, start, end time.Time) *domain.FiscalPeriod {
	t.Helper()
	p, err := l.chart.CreatePeriod(ctx, usecase.CreatePeriodInput{CompanyID: company, StartDate: start, EndDate: end, ActorID: "setup"})
	require.NoError(t, err)
	return p
}

func (l *testLedger) createAccount(t *testing.T, ctx context.Context, code, name string, typ domain.AccountType) *domain.Account {
	t.Helper()
	a, err := l.chart.CreateAccount(ctx, usecase.CreateAccountInput{
		CompanyID: company,
		Code:      code,
		Name:      name,
		Type:      typ,
		Currency:  "USD",
		ActorID:   "setup",
	})
	require.NoError(t, err)
	return a
}

type docOpt func(*usecase.PostDocumentInput)

func withContact(id string) docOpt {
	return func(in *usecase.PostDocumentInput) { in.Transaction.ContactID = &id }
}

func withType(typ domain.TransactionType) docOpt {
	return func(in *usecase.PostDocumentInput) { in.Transaction.Type = typ }
}

// postInvoice posts a two-line document debiting receivables and crediting revenue.
func (l *testLedger) postInvoice(t *testing.T, number string, on time.Time, total string, opts ...docOpt) (*domain.Transaction, *domain.JournalEntry) {
	t.Helper()
	in := usecase.PostDocumentInput{
		CompanyID: company,
		ActorID:   "clerk",
		Transaction: usecase.TransactionSpec{
			Type:     domain.TxTypeInvoice,
			Number:   number,
			Date:     on,
			Currency: "USD",
		},
		Lines: []usecase.LineSpec{
			{AccountID: l.receivable.ID, Type: domain.Debit, Amount: amount(total)},
			{AccountID: l.revenue.ID, Type: domain.Credit, Amount: amount(total)},
		},
	}
	for _, opt := range opts {
		opt(&in)
	}
	txn, entry, err := l.documents.PostDocument(context.Background(), in)
	require.NoError(t, err)
	return txn, entry
}

// draftTransaction stores an unposted transaction for entries created by hand.
func (l *testLedger) draftTransaction(t *testing.T, number string, on time.Time) *domain.Transaction {
	t.Helper()
	ctx := context.Background()
	now := l.clock.Now()
	txn := &domain.Transaction{
		ID:              l.ids.Generate(),
		CompanyID:       company,
		Type:            domain.TxTypeJournal,
		Number:          number,
		TransactionDate: on,
		Currency:        "USD",
		ExchangeRate:    decimal.NewFromInt(1),
		Status:          domain.TxStatusDraft,
		CreatedBy:       "clerk",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx, err := l.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, l.store.Transactions().Create(ctx, tx, txn))
	require.NoError(t, tx.Commit(ctx))
	return txn
}

func (l *testLedger) balanceOf(t *testing.T, a *domain.Account) decimal.Decimal {
	t.Helper()
	got, err := l.chart.GetAccount(context.Background(), company, a.ID)
	require.NoError(t, err)
	return got.CurrentBalance
}

func (l *testLedger) head(t *testing.T) int64 {
	t.Helper()
	h, err := l.store.Audit().Head(context.Background(), company)
	require.NoError(t, err)
	return h.LastSequence
}

func (l *testLedger) eventTypes() []string {
	var out []string
	for _, e := range l.store.Outbox().Events() {
		out = append(out, e.EventType)
	}
	return out
}

func findingsOfType(findings []*domain.AnomalyDetection, typ domain.DetectionType) []*domain.AnomalyDetection {
	var out []*domain.AnomalyDetection
	for _, f := range findings {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}
