package domain

import "github.com/shopspring/decimal"

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyTRY Currency = "TRY"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyTRY:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusInactive AccountStatus = "INACTIVE"
	AccountStatusClosed   AccountStatus = "CLOSED"
)

// Account is the read projection returned by the ledger service. Balances are
// owned by the ledger; this is a point-in-time view used for validation only.
type Account struct {
	ID       string
	Status   AccountStatus
	Balance  decimal.Decimal
	Currency Currency
}

func (a *Account) Active() bool {
	return a.Status == AccountStatusActive
}
