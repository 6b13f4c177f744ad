package models

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is the single platform currency.
const Currency = money.USD

// Amount is a monetary value in minor units (cents).
type Amount int64

// Dollars builds an Amount from whole currency units.
func Dollars(n int64) Amount { return Amount(n * 100) }

// String formats the amount for display, e.g. "$27.00".
func (a Amount) String() string {
	return money.New(int64(a), Currency).Display()
}

// Decimal returns the amount in minor units as a decimal.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(a))
}

// AmountFromDecimal rounds a minor-unit decimal to the nearest cent,
// half away from zero.
func AmountFromDecimal(d decimal.Decimal) Amount {
	return Amount(d.Round(0).IntPart())
}
