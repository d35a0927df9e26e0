package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
	"github.com/iho/tripleledger/internal/usecase/mocks"
)

func TestPostDocument_PostAndVoidRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	txn, entry := l.postInvoice(t, "INV-1", date(2024, time.January, 10), "1200.00")

	assert.Equal(t, domain.TxStatusPosted, txn.Status)
	assert.Equal(t, domain.EntryPosted, entry.Status)
	assert.Equal(t, l.jan.ID, entry.FiscalPeriodID)
	assert.True(t, entry.TotalDebit.Equal(entry.TotalCredit))
	assert.True(t, l.balanceOf(t, l.revenue).Equal(amount("1200")))
	assert.True(t, l.balanceOf(t, l.receivable).Equal(amount("1200")))
	assert.Contains(t, l.eventTypes(), domain.EventTypeEntryPosted)

	require.NoError(t, l.documents.VoidDocument(ctx, company, txn.ID, "entered twice", "controller"))

	assert.True(t, l.balanceOf(t, l.revenue).IsZero())
	assert.True(t, l.balanceOf(t, l.receivable).IsZero())

	voided, err := l.queries.GetEntry(ctx, company, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryVoid, voided.Status)
	assert.Len(t, voided.Lines, 2, "void keeps the lines")
	require.NotNil(t, voided.VoidReason)
	assert.Equal(t, "entered twice", *voided.VoidReason)

	gotTxn, err := l.queries.GetTransaction(ctx, company, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusVoid, gotTxn.Status)
	assert.Contains(t, l.eventTypes(), domain.EventTypeTransactionVoided)
}

func TestVoid_LastEntryVoidsTransaction(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	txn, entry := l.postInvoice(t, "INV-1", date(2024, time.January, 10), "80.00")
	require.NoError(t, l.posting.Void(ctx, company, entry.ID, "wrong customer", "controller"))

	gotTxn, err := l.queries.GetTransaction(ctx, company, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusVoid, gotTxn.Status)
	assert.True(t, l.balanceOf(t, l.revenue).IsZero())

	err = l.posting.Void(ctx, company, entry.ID, "again", "controller")
	assert.ErrorIs(t, err, domain.ErrEntryNotPosted)
	assert.ErrorIs(t, err, domain.ErrState)
}

func TestRecomputeBalance_Idempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	l.postInvoice(t, "INV-1", date(2024, time.January, 10), "1200.00")

	head := l.head(t)
	for i := 0; i < 2; i++ {
		got, err := l.balance.RecomputeBalance(ctx, company, l.revenue.ID)
		require.NoError(t, err)
		assert.True(t, got.Equal(amount("1200")))
	}
	assert.Equal(t, head, l.head(t), "unchanged balances are not audited")

	_, err := l.balance.RecomputeBalance(ctx, company, "missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateBalancedEntry_Rejections(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	txn := l.draftTransaction(t, "JV-1", date(2024, time.January, 10))

	tests := []struct {
		name   string
		lines  []usecase.LineSpec
		target error
		kind   error
	}{
		{
			name: "unbalanced",
			lines: []usecase.LineSpec{
				{AccountID: l.cash.ID, Type: domain.Debit, Amount: amount("100")},
				{AccountID: l.revenue.ID, Type: domain.Credit, Amount: amount("99.99")},
			},
			target: domain.ErrUnbalanced,
			kind:   domain.ErrValidation,
		},
		{
			name: "too many fractional digits",
			lines: []usecase.LineSpec{
				{AccountID: l.cash.ID, Type: domain.Debit, Amount: amount("10.12345")},
				{AccountID: l.revenue.ID, Type: domain.Credit, Amount: amount("10.12345")},
			},
			target: domain.ErrAmountScale,
			kind:   domain.ErrValidation,
		},
		{
			name: "zero amount",
			lines: []usecase.LineSpec{
				{AccountID: l.cash.ID, Type: domain.Debit, Amount: amount("0")},
				{AccountID: l.revenue.ID, Type: domain.Credit, Amount: amount("0")},
			},
			target: domain.ErrInvalidAmount,
			kind:   domain.ErrValidation,
		},
		{
			name: "unknown account",
			lines: []usecase.LineSpec{
				{AccountID: "missing", Type: domain.Debit, Amount: amount("5")},
				{AccountID: l.revenue.ID, Type: domain.Credit, Amount: amount("5")},
			},
			target: domain.ErrAccountNotFound,
			kind:   domain.ErrNotFound,
		},
		{
			name:   "no lines",
			target: domain.ErrNoLines,
			kind:   domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			head := l.head(t)
			_, err := l.posting.CreateBalancedEntry(ctx, usecase.CreateEntryInput{
				CompanyID:     company,
				TransactionID: txn.ID,
				ActorID:       "clerk",
				Lines:         tt.lines,
			})
			assert.ErrorIs(t, err, tt.target)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, head, l.head(t), "rejected entries leave no audit records")
		})
	}

	entries, err := l.queries.ListEntriesByTransaction(ctx, company, txn.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPost_DraftLifecycle(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	txn := l.draftTransaction(t, "JV-1", date(2024, time.January, 11))

	entry, err := l.posting.CreateBalancedEntry(ctx, usecase.CreateEntryInput{
		CompanyID:     company,
		TransactionID: txn.ID,
		ActorID:       "clerk",
		Lines: []usecase.LineSpec{
			{AccountID: l.fee.ID, Type: domain.Debit, Amount: amount("12.5")},
			{AccountID: l.cash.ID, Type: domain.Credit, Amount: amount("12.5")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EntryDraft, entry.Status)
	assert.True(t, l.balanceOf(t, l.fee).IsZero(), "drafts do not move balances")

	err = l.posting.Void(ctx, company, entry.ID, "not posted yet", "clerk")
	assert.ErrorIs(t, err, domain.ErrEntryNotPosted)

	require.NoError(t, l.posting.Post(ctx, company, entry.ID, "clerk"))
	assert.True(t, l.balanceOf(t, l.fee).Equal(amount("12.5")))
	assert.True(t, l.balanceOf(t, l.cash).Equal(amount("-12.5")))

	gotTxn, err := l.queries.GetTransaction(ctx, company, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPosted, gotTxn.Status, "posting cascades to the transaction")
	assert.True(t, gotTxn.TotalAmount.Equal(amount("12.5")))

	err = l.posting.Post(ctx, company, entry.ID, "clerk")
	assert.ErrorIs(t, err, domain.ErrEntryNotDraft)

	err = l.posting.Void(ctx, company, entry.ID, "  ", "clerk")
	assert.ErrorIs(t, err, domain.ErrVoidReasonRequired)
}

func TestReverse_SwapsLinesAndLinksBothWays(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	_, original := l.postInvoice(t, "INV-1", date(2024, time.January, 10), "450.25")

	reversal, err := l.posting.Reverse(ctx, usecase.ReverseInput{CompanyID: company, EntryID: original.ID, ActorID: "controller"})
	require.NoError(t, err)

	assert.Equal(t, domain.EntryReversing, reversal.Type)
	assert.Equal(t, domain.EntryPosted, reversal.Status)
	assert.Equal(t, date(2024, time.February, 1), reversal.EntryDate, "defaults to the next period start")
	assert.Equal(t, l.feb.ID, reversal.FiscalPeriodID)
	require.NotNil(t, reversal.ReversalOfEntryID)
	assert.Equal(t, original.ID, *reversal.ReversalOfEntryID)

	require.Len(t, reversal.Lines, len(original.Lines))
	for i, line := range reversal.Lines {
		assert.Equal(t, original.Lines[i].AccountID, line.AccountID)
		assert.Equal(t, original.Lines[i].Type.Opposite(), line.Type)
		assert.True(t, original.Lines[i].Amount.Equal(line.Amount))
		assert.NotEqual(t, original.Lines[i].ID, line.ID)
	}

	stored, err := l.queries.GetEntry(ctx, company, original.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReversedByEntryID)
	assert.Equal(t, reversal.ID, *stored.ReversedByEntryID)

	assert.True(t, l.balanceOf(t, l.revenue).IsZero())
	endOfJan, err := l.queries.BalanceAsOf(ctx, company, l.revenue.ID, date(2024, time.January, 31))
	require.NoError(t, err)
	assert.True(t, endOfJan.Equal(amount("450.25")), "reversal is dated in February")

	_, err = l.posting.Reverse(ctx, usecase.ReverseInput{CompanyID: company, EntryID: original.ID})
	assert.ErrorIs(t, err, domain.ErrAlreadyReversed)
	assert.Contains(t, l.eventTypes(), domain.EventTypeEntryReversed)
}

func TestReverse_ExplicitDate(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	_, original := l.postInvoice(t, "INV-1", date(2024, time.January, 10), "10")

	on := date(2024, time.January, 20)
	reversal, err := l.posting.Reverse(ctx, usecase.ReverseInput{CompanyID: company, EntryID: original.ID, Date: &on})
	require.NoError(t, err)
	assert.Equal(t, on, reversal.EntryDate)
	assert.Equal(t, l.jan.ID, reversal.FiscalPeriodID)
}

func TestReverseDocument_CreatesCounterpart(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	txn, _ := l.postInvoice(t, "INV-7", date(2024, time.January, 10), "300")

	counterpart, err := l.documents.ReverseDocument(ctx, company, txn.ID, nil, "controller")
	require.NoError(t, err)

	assert.Equal(t, "INV-7-R", counterpart.Number)
	assert.Equal(t, domain.TxStatusPosted, counterpart.Status)
	require.NotNil(t, counterpart.ReversalOfID)
	assert.Equal(t, txn.ID, *counterpart.ReversalOfID)
	assert.Equal(t, l.feb.ID, counterpart.FiscalPeriodID)

	original, err := l.queries.GetTransaction(ctx, company, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, original.ReversedByID)
	assert.Equal(t, counterpart.ID, *original.ReversedByID)

	entries, err := l.queries.ListEntriesByTransaction(ctx, company, counterpart.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntryReversing, entries[0].Type)
	assert.True(t, l.balanceOf(t, l.receivable).IsZero())

	_, err = l.documents.ReverseDocument(ctx, company, txn.ID, nil, "controller")
	assert.ErrorIs(t, err, domain.ErrAlreadyReversed)
	_, err = l.documents.ReverseDocument(ctx, company, counterpart.ID, nil, "controller")
	assert.ErrorIs(t, err, domain.ErrAlreadyReversed, "a reversal cannot be reversed")
}

func TestRemoveDraftLine(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	txn := l.draftTransaction(t, "JV-2", date(2024, time.January, 11))

	entry, err := l.posting.CreateBalancedEntry(ctx, usecase.CreateEntryInput{
		CompanyID:     company,
		TransactionID: txn.ID,
		Lines: []usecase.LineSpec{
			{AccountID: l.cash.ID, Type: domain.Debit, Amount: amount("60")},
			{AccountID: l.cash.ID, Type: domain.Debit, Amount: amount("40")},
			{AccountID: l.revenue.ID, Type: domain.Credit, Amount: amount("100")},
		},
	})
	require.NoError(t, err)

	updated, err := l.posting.RemoveDraftLine(ctx, company, entry.ID, entry.Lines[1].ID, "clerk")
	require.NoError(t, err)
	assert.Len(t, updated.Lines, 2)
	assert.True(t, updated.TotalDebit.Equal(amount("60")))
	assert.True(t, updated.TotalCredit.Equal(amount("100")))

	err = l.posting.Post(ctx, company, entry.ID, "clerk")
	assert.ErrorIs(t, err, domain.ErrUnbalanced, "an unbalanced draft cannot be posted")

	_, err = l.posting.RemoveDraftLine(ctx, company, entry.ID, "missing", "clerk")
	assert.ErrorIs(t, err, domain.ErrLineNotFound)
}

func TestPostDocument_ClosedPeriod(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.booksClose.RunBooksClose(ctx, company, l.dec.ID, "controller")
	require.NoError(t, err)
	_, err = l.booksClose.ClosePeriod(ctx, company, l.dec.ID, "controller")
	require.NoError(t, err)

	head := l.head(t)
	_, _, err = l.documents.PostDocument(ctx, usecase.PostDocumentInput{
		CompanyID:   company,
		Transaction: usecase.TransactionSpec{Type: domain.TxTypeInvoice, Number: "INV-99", Date: date(2023, time.December, 15), Currency: "USD"},
		Lines: []usecase.LineSpec{
			{AccountID: l.receivable.ID, Type: domain.Debit, Amount: amount("5")},
			{AccountID: l.revenue.ID, Type: domain.Credit, Amount: amount("5")},
		},
	})
	require.Error(t, err)
	assert.True(t, domain.IsPeriodClosed(err))
	assert.ErrorIs(t, err, domain.ErrPeriodClosed)
	assert.Equal(t, head, l.head(t))
}

func TestPostDocument_DuplicateNumber(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	l.postInvoice(t, "INV-1", date(2024, time.January, 10), "10")

	_, _, err := l.documents.PostDocument(ctx, usecase.PostDocumentInput{
		CompanyID:   company,
		Transaction: usecase.TransactionSpec{Type: domain.TxTypeInvoice, Number: "INV-1", Date: date(2024, time.January, 11), Currency: "USD"},
		Lines: []usecase.LineSpec{
			{AccountID: l.receivable.ID, Type: domain.Debit, Amount: amount("5")},
			{AccountID: l.revenue.ID, Type: domain.Credit, Amount: amount("5")},
		},
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateNumber)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestPostDocument_ForeignCurrencyBaseAmounts(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	txn, entry, err := l.documents.PostDocument(ctx, usecase.PostDocumentInput{
		CompanyID: company,
		Transaction: usecase.TransactionSpec{
			Type:         domain.TxTypeInvoice,
			Number:       "INV-EUR-1",
			Date:         date(2024, time.January, 10),
			Currency:     "eur",
			ExchangeRate: amount("1.08335"),
		},
		Lines: []usecase.LineSpec{
			{AccountID: l.receivable.ID, Type: domain.Debit, Amount: amount("100")},
			{AccountID: l.revenue.ID, Type: domain.Credit, Amount: amount("100")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "EUR", txn.Currency)
	for _, line := range entry.Lines {
		assert.Equal(t, "108.3350", line.BaseAmount.StringFixed(4))
	}
	assert.True(t, l.balanceOf(t, l.revenue).Equal(amount("108.335")))
}

func TestPostDocument_UsesRetrier(t *testing.T) {
	ctrl := gomock.NewController(t)
	retrier := mocks.NewMockRetrier(ctrl)

	calls := 0
	retrier.EXPECT().
		Retry(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, op func() error) error {
			calls++
			return op()
		}).
		Times(1)

	l := newTestLedger(t, withRetrier(retrier))
	l.postInvoice(t, "INV-1", date(2024, time.January, 10), "25")
	assert.Equal(t, 1, calls)
}

func TestPostDocument_RetrierSeesFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	retrier := mocks.NewMockRetrier(ctrl)

	var seen error
	retrier.EXPECT().
		Retry(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, op func() error) error {
			seen = op()
			return seen
		})

	l := newTestLedger(t, withRetrier(retrier))
	_, _, err := l.documents.PostDocument(context.Background(), usecase.PostDocumentInput{
		CompanyID:   company,
		Transaction: usecase.TransactionSpec{Type: domain.TxTypeInvoice, Number: "INV-1", Date: date(2030, time.January, 10), Currency: "USD"},
		Lines: []usecase.LineSpec{
			{AccountID: l.receivable.ID, Type: domain.Debit, Amount: amount("5")},
			{AccountID: l.revenue.ID, Type: domain.Credit, Amount: amount("5")},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(seen, domain.ErrPeriodNotFound))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
