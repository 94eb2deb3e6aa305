// Package repository provides the Postgres-backed persistence layer: GORM
// models, per-entity repositories, and the unit of work.
package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nilepay/payfac/pkg/domain/ledger"
	"github.com/nilepay/payfac/pkg/domain/merchant"
	"github.com/nilepay/payfac/pkg/domain/payout"
	"github.com/nilepay/payfac/pkg/domain/settlement"
)

// SubMerchant is the sub_merchants row.
type SubMerchant struct {
	ID     uuid.UUID `gorm:"type:uuid;primary_key"`
	Name   string    `gorm:"not null"`
	Status string    `gorm:"type:varchar(16);not null;index"`

	SettlementCycle      string `gorm:"type:varchar(16);not null"`
	SettlementDayOfWeek  int
	SettlementWeekParity int
	SettlementDayOfMonth int

	ReservePercentage   decimal.Decimal `gorm:"type:numeric(8,4);not null"`
	ReserveDays         int
	MinimumPayoutAmount decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	RiskScore           *int

	PayoutMethod      string `gorm:"type:varchar(32);not null"`
	DestBankCode      string
	DestAccountNumber string
	DestAccountName   string
	DestWalletNumber  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName specifies the table name for the SubMerchant model.
func (SubMerchant) TableName() string { return "sub_merchants" }

func subMerchantToModel(m *merchant.SubMerchant) SubMerchant {
	return SubMerchant{
		ID:                   m.ID,
		Name:                 m.Name,
		Status:               string(m.Status),
		SettlementCycle:      string(m.SettlementCycle),
		SettlementDayOfWeek:  int(m.SettlementDayOfWeek),
		SettlementWeekParity: m.SettlementWeekParity,
		SettlementDayOfMonth: m.SettlementDayOfMonth,
		ReservePercentage:    m.ReservePercentage,
		ReserveDays:          m.ReserveDays,
		MinimumPayoutAmount:  m.MinimumPayoutAmount,
		RiskScore:            m.RiskScore,
		PayoutMethod:         string(m.PayoutMethod),
		DestBankCode:         m.Destination.BankCode,
		DestAccountNumber:    m.Destination.AccountNumber,
		DestAccountName:      m.Destination.AccountName,
		DestWalletNumber:     m.Destination.WalletNumber,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func subMerchantToDomain(m *SubMerchant) *merchant.SubMerchant {
	return &merchant.SubMerchant{
		ID:                   m.ID,
		Name:                 m.Name,
		Status:               merchant.Status(m.Status),
		SettlementCycle:      merchant.SettlementCycle(m.SettlementCycle),
		SettlementDayOfWeek:  time.Weekday(m.SettlementDayOfWeek),
		SettlementWeekParity: m.SettlementWeekParity,
		SettlementDayOfMonth: m.SettlementDayOfMonth,
		ReservePercentage:    m.ReservePercentage,
		ReserveDays:          m.ReserveDays,
		MinimumPayoutAmount:  m.MinimumPayoutAmount,
		RiskScore:            m.RiskScore,
		PayoutMethod:         payout.Method(m.PayoutMethod),
		Destination: payout.Destination{
			BankCode:      m.DestBankCode,
			AccountNumber: m.DestAccountNumber,
			AccountName:   m.DestAccountName,
			WalletNumber:  m.DestWalletNumber,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// Transaction is the transactions row. A null settlement_id marks the row as
// unclaimed.
type Transaction struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key"`
	SubMerchantID uuid.UUID  `gorm:"type:uuid;not null;index"`
	SettlementID  *uuid.UUID `gorm:"type:uuid;index"`

	Amount       decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	ProcessorFee decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	PlatformFee  decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Currency     string          `gorm:"type:varchar(3);not null;default:'EGP'"`
	Reference    string          `gorm:"uniqueIndex"`

	CapturedAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}

// TableName specifies the table name for the Transaction model.
func (Transaction) TableName() string { return "transactions" }

func transactionToModel(t *ledger.Transaction) Transaction {
	return Transaction{
		ID:            t.ID,
		SubMerchantID: t.SubMerchantID,
		SettlementID:  t.SettlementID,
		Amount:        t.Amount,
		ProcessorFee:  t.ProcessorFee,
		PlatformFee:   t.PlatformFee,
		Currency:      t.Currency,
		Reference:     t.Reference,
		CapturedAt:    t.CapturedAt,
		CreatedAt:     t.CreatedAt,
	}
}

func transactionToDomain(t *Transaction) *ledger.Transaction {
	return &ledger.Transaction{
		ID:            t.ID,
		SubMerchantID: t.SubMerchantID,
		SettlementID:  t.SettlementID,
		Amount:        t.Amount,
		ProcessorFee:  t.ProcessorFee,
		PlatformFee:   t.PlatformFee,
		Currency:      t.Currency,
		Reference:     t.Reference,
		CapturedAt:    t.CapturedAt,
		CreatedAt:     t.CreatedAt,
	}
}

// Refund is the refunds row.
type Refund struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key"`
	SubMerchantID uuid.UUID  `gorm:"type:uuid;not null;index"`
	TransactionID uuid.UUID  `gorm:"type:uuid"`
	SettlementID  *uuid.UUID `gorm:"type:uuid;index"`

	Amount    decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	RefundFee decimal.Decimal `gorm:"type:numeric(18,2);not null"`

	CompletedAt time.Time `gorm:"index"`
	CreatedAt   time.Time
}

// TableName specifies the table name for the Refund model.
func (Refund) TableName() string { return "refunds" }

func refundToModel(r *ledger.Refund) Refund {
	return Refund{
		ID:            r.ID,
		SubMerchantID: r.SubMerchantID,
		TransactionID: r.TransactionID,
		SettlementID:  r.SettlementID,
		Amount:        r.Amount,
		RefundFee:     r.RefundFee,
		CompletedAt:   r.CompletedAt,
		CreatedAt:     r.CreatedAt,
	}
}

func refundToDomain(r *Refund) *ledger.Refund {
	return &ledger.Refund{
		ID:            r.ID,
		SubMerchantID: r.SubMerchantID,
		TransactionID: r.TransactionID,
		SettlementID:  r.SettlementID,
		Amount:        r.Amount,
		RefundFee:     r.RefundFee,
		CompletedAt:   r.CompletedAt,
		CreatedAt:     r.CreatedAt,
	}
}

// Dispute is the disputes row.
type Dispute struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key"`
	SubMerchantID uuid.UUID  `gorm:"type:uuid;not null;index"`
	TransactionID uuid.UUID  `gorm:"type:uuid"`
	SettlementID  *uuid.UUID `gorm:"type:uuid;index"`

	Amount     decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	DisputeFee decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Outcome    string          `gorm:"type:varchar(8);not null"`

	ResolvedAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}

// TableName specifies the table name for the Dispute model.
func (Dispute) TableName() string { return "disputes" }

func disputeToModel(d *ledger.Dispute) Dispute {
	return Dispute{
		ID:            d.ID,
		SubMerchantID: d.SubMerchantID,
		TransactionID: d.TransactionID,
		SettlementID:  d.SettlementID,
		Amount:        d.Amount,
		DisputeFee:    d.DisputeFee,
		Outcome:       string(d.Outcome),
		ResolvedAt:    d.ResolvedAt,
		CreatedAt:     d.CreatedAt,
	}
}

func disputeToDomain(d *Dispute) *ledger.Dispute {
	return &ledger.Dispute{
		ID:            d.ID,
		SubMerchantID: d.SubMerchantID,
		TransactionID: d.TransactionID,
		SettlementID:  d.SettlementID,
		Amount:        d.Amount,
		DisputeFee:    d.DisputeFee,
		Outcome:       ledger.DisputeOutcome(d.Outcome),
		ResolvedAt:    d.ResolvedAt,
		CreatedAt:     d.CreatedAt,
	}
}

// Reserve is the reserves row.
type Reserve struct {
	ID                     uuid.UUID  `gorm:"type:uuid;primary_key"`
	SubMerchantID          uuid.UUID  `gorm:"type:uuid;not null;index"`
	SettlementID           uuid.UUID  `gorm:"type:uuid;not null"`
	ReleasedBySettlementID *uuid.UUID `gorm:"type:uuid"`

	Amount      decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	ReleaseDate time.Time       `gorm:"index"`
	Status      string          `gorm:"type:varchar(16);not null;index"`
	ReleasedAt  *time.Time

	CreatedAt time.Time
}

// TableName specifies the table name for the Reserve model.
func (Reserve) TableName() string { return "reserves" }

func reserveToModel(r *ledger.Reserve) Reserve {
	return Reserve{
		ID:                     r.ID,
		SubMerchantID:          r.SubMerchantID,
		SettlementID:           r.SettlementID,
		ReleasedBySettlementID: r.ReleasedBySettlementID,
		Amount:                 r.Amount,
		ReleaseDate:            r.ReleaseDate,
		Status:                 string(r.Status),
		ReleasedAt:             r.ReleasedAt,
		CreatedAt:              r.CreatedAt,
	}
}

func reserveToDomain(r *Reserve) *ledger.Reserve {
	return &ledger.Reserve{
		ID:                     r.ID,
		SubMerchantID:          r.SubMerchantID,
		SettlementID:           r.SettlementID,
		ReleasedBySettlementID: r.ReleasedBySettlementID,
		Amount:                 r.Amount,
		ReleaseDate:            r.ReleaseDate,
		Status:                 ledger.ReserveStatus(r.Status),
		ReleasedAt:             r.ReleasedAt,
		CreatedAt:              r.CreatedAt,
	}
}

// Settlement is the settlements row.
type Settlement struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	Reference     string    `gorm:"uniqueIndex;not null"`
	SubMerchantID uuid.UUID `gorm:"type:uuid;not null;index:idx_settlements_merchant_period"`
	PeriodStart   time.Time
	PeriodEnd     time.Time `gorm:"index:idx_settlements_merchant_period"`

	GrossSales    decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	GrossRefunds  decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	GrossDisputes decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	GrossAmount   decimal.Decimal `gorm:"type:numeric(18,2);not null"`

	ProcessorFees decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	PlatformFees  decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	RefundFees    decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	DisputeFees   decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	TotalFees     decimal.Decimal `gorm:"type:numeric(18,2);not null"`

	ReserveHeld     decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	ReserveReleased decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	NetAmount       decimal.Decimal `gorm:"type:numeric(18,2);not null"`

	TransactionCount int
	RefundCount      int
	DisputeCount     int

	Status     string `gorm:"type:varchar(16);not null;index"`
	ApprovedBy string
	ApprovedAt *time.Time
	HoldReason string
	PayoutID   *uuid.UUID `gorm:"type:uuid"`
	PaidAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName specifies the table name for the Settlement model.
func (Settlement) TableName() string { return "settlements" }

func settlementToModel(s *settlement.Settlement) Settlement {
	return Settlement{
		ID:               s.ID,
		Reference:        s.Reference,
		SubMerchantID:    s.SubMerchantID,
		PeriodStart:      s.PeriodStart,
		PeriodEnd:        s.PeriodEnd,
		GrossSales:       s.GrossSales,
		GrossRefunds:     s.GrossRefunds,
		GrossDisputes:    s.GrossDisputes,
		GrossAmount:      s.GrossAmount,
		ProcessorFees:    s.ProcessorFees,
		PlatformFees:     s.PlatformFees,
		RefundFees:       s.RefundFees,
		DisputeFees:      s.DisputeFees,
		TotalFees:        s.TotalFees,
		ReserveHeld:      s.ReserveHeld,
		ReserveReleased:  s.ReserveReleased,
		NetAmount:        s.NetAmount,
		TransactionCount: s.TransactionCount,
		RefundCount:      s.RefundCount,
		DisputeCount:     s.DisputeCount,
		Status:           string(s.Status),
		ApprovedBy:       s.ApprovedBy,
		ApprovedAt:       s.ApprovedAt,
		HoldReason:       s.HoldReason,
		PayoutID:         s.PayoutID,
		PaidAt:           s.PaidAt,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func settlementToDomain(s *Settlement) *settlement.Settlement {
	return &settlement.Settlement{
		ID:               s.ID,
		Reference:        s.Reference,
		SubMerchantID:    s.SubMerchantID,
		PeriodStart:      s.PeriodStart,
		PeriodEnd:        s.PeriodEnd,
		GrossSales:       s.GrossSales,
		GrossRefunds:     s.GrossRefunds,
		GrossDisputes:    s.GrossDisputes,
		GrossAmount:      s.GrossAmount,
		ProcessorFees:    s.ProcessorFees,
		PlatformFees:     s.PlatformFees,
		RefundFees:       s.RefundFees,
		DisputeFees:      s.DisputeFees,
		TotalFees:        s.TotalFees,
		ReserveHeld:      s.ReserveHeld,
		ReserveReleased:  s.ReserveReleased,
		NetAmount:        s.NetAmount,
		TransactionCount: s.TransactionCount,
		RefundCount:      s.RefundCount,
		DisputeCount:     s.DisputeCount,
		Status:           settlement.Status(s.Status),
		ApprovedBy:       s.ApprovedBy,
		ApprovedAt:       s.ApprovedAt,
		HoldReason:       s.HoldReason,
		PayoutID:         s.PayoutID,
		PaidAt:           s.PaidAt,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

// SettlementItem is the settlement_items row.
type SettlementItem struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key"`
	SettlementID uuid.UUID  `gorm:"type:uuid;not null;index"`
	Type         string     `gorm:"type:varchar(24);not null"`
	SourceID     *uuid.UUID `gorm:"type:uuid"`

	Gross decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Fee   decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Net   decimal.Decimal `gorm:"type:numeric(18,2);not null"`

	CreatedAt time.Time
}

// TableName specifies the table name for the SettlementItem model.
func (SettlementItem) TableName() string { return "settlement_items" }

func itemToModel(i *settlement.Item) SettlementItem {
	return SettlementItem{
		ID:           i.ID,
		SettlementID: i.SettlementID,
		Type:         string(i.Type),
		SourceID:     i.SourceID,
		Gross:        i.Gross,
		Fee:          i.Fee,
		Net:          i.Net,
		CreatedAt:    i.CreatedAt,
	}
}

func itemToDomain(i *SettlementItem) *settlement.Item {
	return &settlement.Item{
		ID:           i.ID,
		SettlementID: i.SettlementID,
		Type:         settlement.ItemType(i.Type),
		SourceID:     i.SourceID,
		Gross:        i.Gross,
		Fee:          i.Fee,
		Net:          i.Net,
		CreatedAt:    i.CreatedAt,
	}
}

// Payout is the payouts row.
type Payout struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key"`
	Reference     string     `gorm:"uniqueIndex;not null"`
	SubMerchantID uuid.UUID  `gorm:"type:uuid;not null;index"`
	SettlementID  *uuid.UUID `gorm:"type:uuid"`
	BatchID       *uuid.UUID `gorm:"type:uuid;index"`

	Amount    decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Fee       decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	NetAmount decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Currency  string          `gorm:"type:varchar(3);not null;default:'EGP'"`

	Method            string `gorm:"type:varchar(32);not null"`
	DestBankCode      string
	DestAccountNumber string
	DestAccountName   string
	DestWalletNumber  string

	Status           string `gorm:"type:varchar(16);not null;index"`
	RequiresApproval bool
	ApprovedBy       string
	ApprovedAt       *time.Time

	ScheduledDate time.Time `gorm:"index"`
	ProcessedAt   *time.Time
	CompletedAt   *time.Time

	ProcessorReference string `gorm:"index"`
	FailureCode        string
	FailureMessage     string

	RetryCount int
	MaxRetries int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName specifies the table name for the Payout model.
func (Payout) TableName() string { return "payouts" }

func payoutToModel(p *payout.Payout) Payout {
	return Payout{
		ID:                 p.ID,
		Reference:          p.Reference,
		SubMerchantID:      p.SubMerchantID,
		SettlementID:       p.SettlementID,
		BatchID:            p.BatchID,
		Amount:             p.Amount,
		Fee:                p.Fee,
		NetAmount:          p.NetAmount,
		Currency:           p.Currency,
		Method:             string(p.Method),
		DestBankCode:       p.Destination.BankCode,
		DestAccountNumber:  p.Destination.AccountNumber,
		DestAccountName:    p.Destination.AccountName,
		DestWalletNumber:   p.Destination.WalletNumber,
		Status:             string(p.Status),
		RequiresApproval:   p.RequiresApproval,
		ApprovedBy:         p.ApprovedBy,
		ApprovedAt:         p.ApprovedAt,
		ScheduledDate:      p.ScheduledDate,
		ProcessedAt:        p.ProcessedAt,
		CompletedAt:        p.CompletedAt,
		ProcessorReference: p.ProcessorReference,
		FailureCode:        p.FailureCode,
		FailureMessage:     p.FailureMessage,
		RetryCount:         p.RetryCount,
		MaxRetries:         p.MaxRetries,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func payoutToDomain(p *Payout) *payout.Payout {
	return &payout.Payout{
		ID:            p.ID,
		Reference:     p.Reference,
		SubMerchantID: p.SubMerchantID,
		SettlementID:  p.SettlementID,
		BatchID:       p.BatchID,
		Amount:        p.Amount,
		Fee:           p.Fee,
		NetAmount:     p.NetAmount,
		Currency:      p.Currency,
		Method:        payout.Method(p.Method),
		Destination: payout.Destination{
			BankCode:      p.DestBankCode,
			AccountNumber: p.DestAccountNumber,
			AccountName:   p.DestAccountName,
			WalletNumber:  p.DestWalletNumber,
		},
		Status:             payout.Status(p.Status),
		RequiresApproval:   p.RequiresApproval,
		ApprovedBy:         p.ApprovedBy,
		ApprovedAt:         p.ApprovedAt,
		ScheduledDate:      p.ScheduledDate,
		ProcessedAt:        p.ProcessedAt,
		CompletedAt:        p.CompletedAt,
		ProcessorReference: p.ProcessorReference,
		FailureCode:        p.FailureCode,
		FailureMessage:     p.FailureMessage,
		RetryCount:         p.RetryCount,
		MaxRetries:         p.MaxRetries,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

// PayoutBatch is the payout_batches row.
type PayoutBatch struct {
	ID                 uuid.UUID `gorm:"type:uuid;primary_key"`
	Reference          string    `gorm:"uniqueIndex;not null"`
	ProcessorReference string
	Method             string `gorm:"type:varchar(32);not null"`
	Status             string `gorm:"type:varchar(24);not null"`

	PayoutCount     int
	TotalAmount     decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	TotalFees       decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	SuccessfulCount int
	FailedCount     int
	FailureMessage  string

	ScheduledDate time.Time `gorm:"index"`
	SubmittedAt   time.Time
	SettledAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName specifies the table name for the PayoutBatch model.
func (PayoutBatch) TableName() string { return "payout_batches" }

func batchToModel(b *payout.Batch) PayoutBatch {
	return PayoutBatch{
		ID:                 b.ID,
		Reference:          b.Reference,
		ProcessorReference: b.ProcessorReference,
		Method:             string(b.Method),
		Status:             string(b.Status),
		PayoutCount:        b.PayoutCount,
		TotalAmount:        b.TotalAmount,
		TotalFees:          b.TotalFees,
		SuccessfulCount:    b.SuccessfulCount,
		FailedCount:        b.FailedCount,
		FailureMessage:     b.FailureMessage,
		ScheduledDate:      b.ScheduledDate,
		SubmittedAt:        b.SubmittedAt,
		SettledAt:          b.SettledAt,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

func batchToDomain(b *PayoutBatch) *payout.Batch {
	return &payout.Batch{
		ID:                 b.ID,
		Reference:          b.Reference,
		ProcessorReference: b.ProcessorReference,
		Method:             payout.Method(b.Method),
		Status:             payout.BatchStatus(b.Status),
		PayoutCount:        b.PayoutCount,
		TotalAmount:        b.TotalAmount,
		TotalFees:          b.TotalFees,
		SuccessfulCount:    b.SuccessfulCount,
		FailedCount:        b.FailedCount,
		FailureMessage:     b.FailureMessage,
		ScheduledDate:      b.ScheduledDate,
		SubmittedAt:        b.SubmittedAt,
		SettledAt:          b.SettledAt,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}
