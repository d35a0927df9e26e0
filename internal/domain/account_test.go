package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAccount_BalanceFrom(t *testing.T) {
	tests := []struct {
		name    string
		normal  NormalBalance
		opening decimal.Decimal
		debits  decimal.Decimal
		credits decimal.Decimal
		want    decimal.Decimal
	}{
		{
			name:    "debit normal",
			normal:  NormalDebit,
			opening: decimal.NewFromInt(100),
			debits:  decimal.NewFromInt(50),
			credits: decimal.NewFromInt(20),
			want:    decimal.NewFromInt(130),
		},
		{
			name:    "credit normal",
			normal:  NormalCredit,
			opening: decimal.NewFromInt(100),
			debits:  decimal.NewFromInt(50),
			credits: decimal.NewFromInt(20),
			want:    decimal.NewFromInt(70),
		},
		{
			name:    "credit normal with revenue",
			normal:  NormalCredit,
			opening: decimal.Zero,
			debits:  decimal.Zero,
			credits: decimal.RequireFromString("1200.0000"),
			want:    decimal.NewFromInt(1200),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &Account{NormalBalance: tt.normal, OpeningBalance: tt.opening}
			got := acc.BalanceFrom(tt.debits, tt.credits)
			if !got.Equal(tt.want) {
				t.Errorf("BalanceFrom() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAccountType_DefaultNormalBalance(t *testing.T) {
	tests := []struct {
		typ  AccountType
		want NormalBalance
	}{
		{AccountTypeAsset, NormalDebit},
		{AccountTypeExpense, NormalDebit},
		{AccountTypeLiability, NormalCredit},
		{AccountTypeEquity, NormalCredit},
		{AccountTypeRevenue, NormalCredit},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if !tt.typ.Valid() {
				t.Fatalf("expected %s to be valid", tt.typ)
			}
			if got := tt.typ.DefaultNormalBalance(); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	if AccountType("cash").Valid() {
		t.Error("unknown type should be invalid")
	}
}

func TestAccount_IsDeleted(t *testing.T) {
	acc := &Account{}
	if acc.IsDeleted() {
		t.Fatal("new account should not be deleted")
	}
	now := time.Now()
	acc.DeletedAt = &now
	if !acc.IsDeleted() {
		t.Fatal("expected account to be deleted")
	}
}
