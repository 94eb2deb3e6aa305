package payout

import (
	"github.com/shopspring/decimal"

	"github.com/nilepay/payfac/pkg/config"
	"github.com/nilepay/payfac/pkg/domain/payout"
	"github.com/nilepay/payfac/pkg/money"
)

// FeeSchedule is the flat per-method payout fee policy. Instant and wallet
// transfers carry a fixed fee; bank transfers are tiered by amount. The
// figures come from configuration, not code.
type FeeSchedule struct {
	Instant      decimal.Decimal
	Wallet       decimal.Decimal
	BankTier1Max decimal.Decimal
	BankTier1    decimal.Decimal
	BankTier2    decimal.Decimal
}

// NewFeeSchedule converts the configured fee figures into decimals.
func NewFeeSchedule(cfg config.Fees) FeeSchedule {
	return FeeSchedule{
		Instant:      money.FromFloat(cfg.Instant),
		Wallet:       money.FromFloat(cfg.Wallet),
		BankTier1Max: money.FromFloat(cfg.BankTier1Max),
		BankTier1:    money.FromFloat(cfg.BankTier1),
		BankTier2:    money.FromFloat(cfg.BankTier2),
	}
}

// FeeFor returns the fee for a payout of the given method and amount.
func (f FeeSchedule) FeeFor(method payout.Method, amount decimal.Decimal) decimal.Decimal {
	switch method {
	case payout.MethodInstantTransfer:
		return f.Instant
	case payout.MethodWallet:
		return f.Wallet
	case payout.MethodBankTransfer:
		if amount.LessThanOrEqual(f.BankTier1Max) {
			return f.BankTier1
		}
		return f.BankTier2
	default:
		return decimal.Zero
	}
}
