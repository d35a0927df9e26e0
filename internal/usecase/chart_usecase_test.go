package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

func TestCreateAccount_Validation(t *testing.T) {
	l := newTestLedger(t)

	tests := []struct {
		name  string
		input usecase.CreateAccountInput
		want  error
	}{
		{
			name:  "missing company",
			input: usecase.CreateAccountInput{Name: "Cash", Type: domain.AccountTypeAsset, Currency: "USD"},
			want:  domain.ErrCompanyRequired,
		},
		{
			name:  "empty name",
			input: usecase.CreateAccountInput{CompanyID: company, Name: "  ", Type: domain.AccountTypeAsset, Currency: "USD"},
			want:  domain.ErrInvalidAccountName,
		},
		{
			name:  "unknown type",
			input: usecase.CreateAccountInput{CompanyID: company, Name: "Cash", Type: "bucket", Currency: "USD"},
			want:  domain.ErrInvalidAccountType,
		},
		{
			name:  "unknown currency",
			input: usecase.CreateAccountInput{CompanyID: company, Name: "Cash", Type: domain.AccountTypeAsset, Currency: "XXX"},
			want:  domain.ErrInvalidCurrency,
		},
		{
			name:  "duplicate code",
			input: usecase.CreateAccountInput{CompanyID: company, Code: "1000", Name: "Petty Cash", Type: domain.AccountTypeAsset, Currency: "USD"},
			want:  domain.ErrDuplicateNumber,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.chart.CreateAccount(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSoftDeleteAccount_BlocksPosting(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	require.NoError(t, l.chart.SoftDeleteAccount(ctx, company, l.fee.ID, "controller"))
	assert.ErrorIs(t, l.chart.SoftDeleteAccount(ctx, company, l.fee.ID, "controller"), domain.ErrAccountDeleted)

	accounts, err := l.chart.ListAccounts(ctx, company, 0, 0)
	require.NoError(t, err)
	assert.Len(t, accounts, 3)
	for _, a := range accounts {
		assert.NotEqual(t, l.fee.ID, a.ID)
	}

	_, _, err = l.documents.PostDocument(ctx, usecase.PostDocumentInput{
		CompanyID:   company,
		Transaction: usecase.TransactionSpec{Type: domain.TxTypeExpense, Number: "EXP-1", Date: date(2024, time.January, 10), Currency: "USD"},
		Lines: []usecase.LineSpec{
			{AccountID: l.fee.ID, Type: domain.Debit, Amount: amount("3")},
			{AccountID: l.cash.ID, Type: domain.Credit, Amount: amount("3")},
		},
	})
	assert.ErrorIs(t, err, domain.ErrAccountDeleted)
}

func TestCreatePeriod(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.chart.CreatePeriod(ctx, usecase.CreatePeriodInput{
		CompanyID: company,
		StartDate: date(2024, time.February, 15),
		EndDate:   date(2024, time.March, 15),
	})
	assert.ErrorIs(t, err, domain.ErrPeriodOverlap)

	_, err = l.chart.CreatePeriod(ctx, usecase.CreatePeriodInput{
		CompanyID: company,
		StartDate: date(2024, time.April, 30),
		EndDate:   date(2024, time.April, 1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)

	march, err := l.chart.CreatePeriod(ctx, usecase.CreatePeriodInput{
		CompanyID: company,
		StartDate: date(2024, time.March, 1),
		EndDate:   date(2024, time.March, 31),
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03", march.Name)
	assert.Equal(t, domain.PeriodOpen, march.Status)

	periods, err := l.chart.ListPeriods(ctx, company)
	require.NoError(t, err)
	require.Len(t, periods, 4)
	assert.Equal(t, l.dec.ID, periods[0].ID)
	assert.Equal(t, march.ID, periods[3].ID)
}
