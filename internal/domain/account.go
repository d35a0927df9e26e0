package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies an account in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// NormalBalance is the side on which an account increases.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "debit"
	NormalCredit NormalBalance = "credit"
)

// DefaultNormalBalance returns the conventional side for t.
func (t AccountType) DefaultNormalBalance() NormalBalance {
	if t == AccountTypeAsset || t == AccountTypeExpense {
		return NormalDebit
	}
	return NormalCredit
}

// Account is a node in a company's chart of accounts.
// CurrentBalance is derived data owned by the balance engine.
type Account struct {
	ID             string
	CompanyID      string
	ParentID       *string
	Code           string
	Name           string
	Type           AccountType
	NormalBalance  NormalBalance
	Currency       string
	OpeningBalance decimal.Decimal
	CurrentBalance decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// IsDeleted reports whether the account was soft-deleted.
func (a *Account) IsDeleted() bool {
	return a.DeletedAt != nil
}

// BalanceFrom applies the normal-balance sign to posted totals.
func (a *Account) BalanceFrom(debits, credits decimal.Decimal) decimal.Decimal {
	if a.NormalBalance == NormalCredit {
		return a.OpeningBalance.Add(credits).Sub(debits)
	}
	return a.OpeningBalance.Add(debits).Sub(credits)
}
