package services

import (
	"github.com/shopspring/decimal"

	"github.com/mangaverse/backend/internal/models"
)

// FeeSplit divides a gross amount between the platform and the recipient.
type FeeSplit struct {
	Gross       models.Amount `json:"gross"`
	PlatformFee models.Amount `json:"platformFee"`
	Payout      models.Amount `json:"payout"`
}

// SplitFee computes platformFee = round(gross * rate) and gives the
// remainder to the recipient, so PlatformFee + Payout == Gross always.
func SplitFee(gross models.Amount, rate decimal.Decimal) FeeSplit {
	fee := models.AmountFromDecimal(gross.Decimal().Mul(rate))
	return FeeSplit{Gross: gross, PlatformFee: fee, Payout: gross - fee}
}
