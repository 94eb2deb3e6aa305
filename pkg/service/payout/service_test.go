package payout

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	infraeventbus "github.com/nilepay/payfac/infra/eventbus"
	"github.com/nilepay/payfac/infra/provider/mocktransfer"
	"github.com/nilepay/payfac/internal/fixtures"
	"github.com/nilepay/payfac/pkg/config"
	"github.com/nilepay/payfac/pkg/domain/events"
	"github.com/nilepay/payfac/pkg/domain/payout"
	"github.com/nilepay/payfac/pkg/domain/settlement"
	"github.com/nilepay/payfac/pkg/provider/transfer"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testPayoutConfig() config.Payout {
	return config.Payout{
		ApprovalThreshold: 100000,
		MaxRetries:        3,
		InterCallDelay:    time.Millisecond,
		Currency:          "EGP",
	}
}

func testFeeConfig() config.Fees {
	return config.Fees{Instant: 5, Wallet: 3, BankTier1Max: 25000, BankTier1: 10, BankTier2: 20}
}

func newTestService(t *testing.T) (*Service, *fixtures.Store, *infraeventbus.MemoryBus) {
	t.Helper()
	uow, store := fixtures.NewUoW()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := infraeventbus.NewMemoryBus(logger)
	bank := mocktransfer.NewBatch()
	svc := New(
		uow,
		[]transfer.Provider{
			mocktransfer.New(payout.MethodInstantTransfer),
			mocktransfer.New(payout.MethodWallet),
			bank,
		},
		bank,
		bus,
		testPayoutConfig(),
		testFeeConfig(),
		logger,
	)
	svc.sleep = func(time.Duration) {}
	return svc, store, bus
}

func destFor(method payout.Method, number string) payout.Destination {
	switch method {
	case payout.MethodWallet:
		return payout.Destination{WalletNumber: number}
	case payout.MethodBankTransfer:
		return payout.Destination{BankCode: "NBE", AccountNumber: number}
	default:
		return payout.Destination{AccountNumber: number}
	}
}

func seedPayout(store *fixtures.Store, method payout.Method, number string) *payout.Payout {
	now := time.Now().UTC()
	p := &payout.Payout{
		ID:            uuid.New(),
		Reference:     payout.NewReference("PO", now),
		SubMerchantID: uuid.New(),
		Amount:        d("1000.00"),
		Fee:           d("5.00"),
		NetAmount:     d("995.00"),
		Currency:      "EGP",
		Method:        method,
		Destination:   destFor(method, number),
		Status:        payout.StatusApproved,
		ScheduledDate: now.Add(-time.Minute),
		MaxRetries:    3,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	store.PayoutsByID[p.ID] = p
	return p
}

func seedApprovedSettlement(store *fixtures.Store, net string) *settlement.Settlement {
	now := time.Now().UTC()
	st := &settlement.Settlement{
		ID:            uuid.New(),
		Reference:     settlement.NewReference(now),
		SubMerchantID: uuid.New(),
		GrossSales:    d(net),
		GrossAmount:   d(net),
		NetAmount:     d(net),
		Status:        settlement.StatusApproved,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	store.SettlementsByID[st.ID] = st
	return st
}

func TestFeeSchedule(t *testing.T) {
	fees := NewFeeSchedule(testFeeConfig())

	tests := []struct {
		name   string
		method payout.Method
		amount string
		want   string
	}{
		{"instant flat fee", payout.MethodInstantTransfer, "1000.00", "5"},
		{"wallet flat fee", payout.MethodWallet, "1000.00", "3"},
		{"bank tier 1", payout.MethodBankTransfer, "1000.00", "10"},
		{"bank tier 1 boundary", payout.MethodBankTransfer, "25000.00", "10"},
		{"bank tier 2", payout.MethodBankTransfer, "25000.01", "20"},
		{"unknown method", payout.Method("cheque"), "1000.00", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fees.FeeFor(tt.method, d(tt.amount))
			assert.True(t, got.Equal(d(tt.want)), "got %s", got)
		})
	}
}

func TestCreatePayout(t *testing.T) {
	t.Run("small payout starts approved with the scheduled fee", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		p, err := svc.CreatePayout(context.Background(), CreatePayoutInput{
			SubMerchantID: uuid.New(),
			Amount:        d("1000.00"),
			Method:        payout.MethodInstantTransfer,
			Destination:   destFor(payout.MethodInstantTransfer, "1234567890"),
		})
		require.NoError(t, err)
		assert.Equal(t, payout.StatusApproved, p.Status)
		assert.False(t, p.RequiresApproval)
		assert.True(t, p.Fee.Equal(d("5")))
		assert.True(t, p.NetAmount.Equal(d("995.00")))
		assert.Equal(t, "EGP", p.Currency)
		assert.False(t, p.ScheduledDate.IsZero())
	})

	t.Run("large payout starts pending", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		p, err := svc.CreatePayout(context.Background(), CreatePayoutInput{
			SubMerchantID: uuid.New(),
			Amount:        d("150000.00"),
			Method:        payout.MethodBankTransfer,
			Destination:   destFor(payout.MethodBankTransfer, "1234567890"),
		})
		require.NoError(t, err)
		assert.Equal(t, payout.StatusPending, p.Status)
		assert.True(t, p.RequiresApproval)
		assert.True(t, p.Fee.Equal(d("20")), "tier 2 fee, got %s", p.Fee)
	})

	t.Run("explicit fee overrides the schedule", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		fee := d("7.505")
		p, err := svc.CreatePayout(context.Background(), CreatePayoutInput{
			SubMerchantID: uuid.New(),
			Amount:        d("100.00"),
			Fee:           &fee,
			Method:        payout.MethodWallet,
			Destination:   destFor(payout.MethodWallet, "01001234567"),
		})
		require.NoError(t, err)
		assert.True(t, p.Fee.Equal(d("7.51")))
		assert.True(t, p.NetAmount.Equal(d("92.49")))
	})

	t.Run("settlement payout attaches exactly once", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		st := seedApprovedSettlement(store, "995.00")

		id := st.ID
		p, err := svc.CreatePayout(context.Background(), CreatePayoutInput{
			SubMerchantID: st.SubMerchantID,
			SettlementID:  &id,
			Amount:        st.NetAmount,
			Method:        payout.MethodInstantTransfer,
			Destination:   destFor(payout.MethodInstantTransfer, "1234567890"),
		})
		require.NoError(t, err)
		require.NotNil(t, st.PayoutID)
		assert.Equal(t, p.ID, *st.PayoutID)

		_, err = svc.CreatePayout(context.Background(), CreatePayoutInput{
			SubMerchantID: st.SubMerchantID,
			SettlementID:  &id,
			Amount:        st.NetAmount,
			Method:        payout.MethodInstantTransfer,
			Destination:   destFor(payout.MethodInstantTransfer, "1234567890"),
		})
		assert.Error(t, err, "a settlement takes a single payout")
	})

	t.Run("rejects non-positive and fee-consumed amounts", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, err := svc.CreatePayout(context.Background(), CreatePayoutInput{
			Amount:      d("0"),
			Method:      payout.MethodInstantTransfer,
			Destination: destFor(payout.MethodInstantTransfer, "1234567890"),
		})
		assert.ErrorIs(t, err, payout.ErrInvalidAmount)

		_, err = svc.CreatePayout(context.Background(), CreatePayoutInput{
			Amount:      d("3.00"), // instant fee is 5.00
			Method:      payout.MethodInstantTransfer,
			Destination: destFor(payout.MethodInstantTransfer, "1234567890"),
		})
		assert.ErrorIs(t, err, payout.ErrInvalidAmount)
	})
}

func TestProcessSinglePayoutOutcomes(t *testing.T) {
	t.Run("synchronous confirmation completes and pays the settlement", func(t *testing.T) {
		svc, store, bus := newTestService(t)
		st := seedApprovedSettlement(store, "995.00")
		p := seedPayout(store, payout.MethodInstantTransfer, "1234567890")
		id := st.ID
		p.SettlementID = &id
		require.NoError(t, st.AttachPayout(p.ID))

		var completed []events.PayoutCompleted
		bus.Subscribe(events.PayoutCompletedName, func(_ context.Context, e events.Event) {
			completed = append(completed, e.(events.PayoutCompleted))
		})

		require.NoError(t, svc.ProcessSinglePayout(context.Background(), p))
		assert.Equal(t, payout.StatusCompleted, p.Status)
		assert.Equal(t, "MOCK-"+p.Reference, p.ProcessorReference)
		assert.Equal(t, settlement.StatusPaid, st.Status)
		require.Len(t, completed, 1)
		assert.Equal(t, p.ID, completed[0].PayoutID)
	})

	t.Run("accepted without confirmation goes to sent", func(t *testing.T) {
		svc, store, bus := newTestService(t)
		p := seedPayout(store, payout.MethodWallet, "01001234567")

		var sent []events.PayoutSent
		bus.Subscribe(events.PayoutSentName, func(_ context.Context, e events.Event) {
			sent = append(sent, e.(events.PayoutSent))
		})

		require.NoError(t, svc.ProcessSinglePayout(context.Background(), p))
		assert.Equal(t, payout.StatusSent, p.Status)
		assert.Equal(t, "MOCK-"+p.Reference, p.ProcessorReference)
		require.Len(t, sent, 1)
	})

	t.Run("unknown outcome stays processing without consuming a retry", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		p := seedPayout(store, payout.MethodInstantTransfer, "9000111222")

		require.NoError(t, svc.ProcessSinglePayout(context.Background(), p))
		assert.Equal(t, payout.StatusProcessing, p.Status)
		assert.Zero(t, p.RetryCount, "an in-flight transfer must not burn retries")
		assert.Equal(t, p.Reference, p.ProcessorReference,
			"an in-flight payout must stay reachable by reference")
	})

	t.Run("timed-out transfer is reconcilable by its own reference", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		st := seedApprovedSettlement(store, "995.00")
		p := seedPayout(store, payout.MethodInstantTransfer, "9000111222")
		id := st.ID
		p.SettlementID = &id
		require.NoError(t, st.AttachPayout(p.ID))

		require.NoError(t, svc.ProcessSinglePayout(context.Background(), p))
		require.Equal(t, payout.StatusProcessing, p.Status)

		require.NoError(t, svc.ConfirmPayoutCompletion(context.Background(), p.Reference, ConfirmationCompleted, "landed"))
		assert.Equal(t, payout.StatusCompleted, p.Status)
		assert.Equal(t, settlement.StatusPaid, st.Status)
	})

	t.Run("authoritative rejection fails terminally", func(t *testing.T) {
		svc, store, bus := newTestService(t)
		p := seedPayout(store, payout.MethodInstantTransfer, "4000111222")

		var failed []events.PayoutFailed
		var alerts []events.OperationalAlert
		bus.Subscribe(events.PayoutFailedName, func(_ context.Context, e events.Event) {
			failed = append(failed, e.(events.PayoutFailed))
		})
		bus.Subscribe(events.OperationalAlertName, func(_ context.Context, e events.Event) {
			alerts = append(alerts, e.(events.OperationalAlert))
		})

		require.NoError(t, svc.ProcessSinglePayout(context.Background(), p))
		assert.Equal(t, payout.StatusFailed, p.Status)
		assert.True(t, p.Terminal())
		assert.False(t, p.CanRetry())
		assert.Equal(t, "invalid_account", p.FailureCode)
		require.Len(t, failed, 1)
		assert.Len(t, alerts, 1)
	})

	t.Run("transient failure consumes one retry", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		p := seedPayout(store, payout.MethodInstantTransfer, "5000111222")

		require.NoError(t, svc.ProcessSinglePayout(context.Background(), p))
		assert.Equal(t, payout.StatusFailed, p.Status)
		assert.Equal(t, 1, p.RetryCount)
		assert.False(t, p.Terminal())
		assert.True(t, p.CanRetry())
	})
}

func TestDispatchDue(t *testing.T) {
	svc, store, _ := newTestService(t)
	now := time.Now().UTC()

	i1 := seedPayout(store, payout.MethodInstantTransfer, "1111111111")
	i2 := seedPayout(store, payout.MethodInstantTransfer, "2222222222")
	w1 := seedPayout(store, payout.MethodWallet, "01001234567")
	b1 := seedPayout(store, payout.MethodBankTransfer, "3333333333")
	b2 := seedPayout(store, payout.MethodBankTransfer, "4444555666") // not a trigger prefix
	b3 := seedPayout(store, payout.MethodBankTransfer, "5555666777")

	// Scheduled in the future, must not move.
	future := seedPayout(store, payout.MethodInstantTransfer, "6666777888")
	future.ScheduledDate = now.AddDate(0, 0, 2)

	report, err := svc.DispatchDue(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 6, report.Due)
	assert.Equal(t, 6, report.Dispatched)
	assert.Equal(t, 1, report.Batches)
	assert.Equal(t, 0, report.Failed)

	assert.Equal(t, payout.StatusCompleted, i1.Status)
	assert.Equal(t, payout.StatusCompleted, i2.Status)
	assert.Equal(t, payout.StatusSent, w1.Status)
	assert.Equal(t, payout.StatusApproved, future.Status)

	// Bank members are batched, sent, and reference themselves for
	// reconciliation.
	require.Len(t, store.BatchesByID, 1)
	for _, b := range store.BatchesByID {
		assert.Equal(t, payout.BatchCompleted, b.Status)
		assert.Equal(t, 3, b.PayoutCount)
		assert.Equal(t, 3, b.SuccessfulCount)
		assert.True(t, b.TotalAmount.Equal(d("2985.00")))
		assert.True(t, b.TotalFees.Equal(d("15.00")), "member fees aggregate, got %s", b.TotalFees)
		assert.Equal(t, now, b.ScheduledDate)
	}
	for _, p := range []*payout.Payout{b1, b2, b3} {
		assert.Equal(t, payout.StatusSent, p.Status)
		assert.Equal(t, p.Reference, p.ProcessorReference)
		require.NotNil(t, p.BatchID)
	}
}

func TestDispatchBankBatchFailureFailsAllMembers(t *testing.T) {
	svc, store, bus := newTestService(t)
	now := time.Now().UTC()

	good := seedPayout(store, payout.MethodBankTransfer, "3333333333")
	bad := seedPayout(store, payout.MethodBankTransfer, "4000111222")

	var alerts []events.OperationalAlert
	bus.Subscribe(events.OperationalAlertName, func(_ context.Context, e events.Event) {
		alerts = append(alerts, e.(events.OperationalAlert))
	})

	require.NoError(t, svc.dispatchBankBatch(context.Background(), now, []*payout.Payout{good, bad}))

	for _, p := range []*payout.Payout{good, bad} {
		assert.Equal(t, payout.StatusFailed, p.Status)
		assert.Equal(t, 1, p.RetryCount)
		assert.Equal(t, "batch_failure", p.FailureCode)
	}
	require.Len(t, store.BatchesByID, 1)
	for _, b := range store.BatchesByID {
		assert.Equal(t, payout.BatchFailed, b.Status)
		assert.Equal(t, 2, b.FailedCount)
		assert.NotEmpty(t, b.FailureMessage)
	}
	require.NotEmpty(t, alerts)
	assert.Equal(t, "payout batch failed", alerts[0].Subject)
}

func TestDispatchBankBatchUnknownOutcomeKeepsMembersInFlight(t *testing.T) {
	svc, store, _ := newTestService(t)
	now := time.Now().UTC()

	p1 := seedPayout(store, payout.MethodBankTransfer, "9000111222")
	p2 := seedPayout(store, payout.MethodBankTransfer, "3333333333")

	require.NoError(t, svc.dispatchBankBatch(context.Background(), now, []*payout.Payout{p1, p2}))

	assert.Equal(t, payout.StatusProcessing, p1.Status)
	assert.Equal(t, payout.StatusProcessing, p2.Status)
	for _, b := range store.BatchesByID {
		assert.Equal(t, payout.BatchProcessing, b.Status)
	}

	// Per-item confirmations can still resolve the in-flight members.
	assert.Equal(t, p2.Reference, p2.ProcessorReference)
	require.NoError(t, svc.ConfirmPayoutCompletion(context.Background(), p2.Reference, ConfirmationCompleted, "landed"))
	assert.Equal(t, payout.StatusCompleted, p2.Status)
}

func TestConfirmPayoutCompletion(t *testing.T) {
	t.Run("completion pays the settlement and replays are no-ops", func(t *testing.T) {
		svc, store, bus := newTestService(t)
		st := seedApprovedSettlement(store, "995.00")
		p := seedPayout(store, payout.MethodBankTransfer, "3333333333")
		id := st.ID
		p.SettlementID = &id
		require.NoError(t, st.AttachPayout(p.ID))
		require.NoError(t, p.MarkProcessing(time.Now().UTC()))
		require.NoError(t, p.MarkSent("PRV-77"))

		var completed []events.PayoutCompleted
		bus.Subscribe(events.PayoutCompletedName, func(_ context.Context, e events.Event) {
			completed = append(completed, e.(events.PayoutCompleted))
		})

		require.NoError(t, svc.ConfirmPayoutCompletion(context.Background(), "PRV-77", ConfirmationCompleted, "ok"))
		assert.Equal(t, payout.StatusCompleted, p.Status)
		assert.Equal(t, settlement.StatusPaid, st.Status)
		require.Len(t, completed, 1)

		// Replayed webhook.
		require.NoError(t, svc.ConfirmPayoutCompletion(context.Background(), "PRV-77", ConfirmationCompleted, "ok"))
		assert.Len(t, completed, 1, "a terminal payout must ignore further confirmations")
	})

	t.Run("failure counts the attempt", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		p := seedPayout(store, payout.MethodBankTransfer, "3333333333")
		require.NoError(t, p.MarkProcessing(time.Now().UTC()))
		require.NoError(t, p.MarkSent("PRV-78"))

		require.NoError(t, svc.ConfirmPayoutCompletion(context.Background(), "PRV-78", ConfirmationFailed, "insufficient rail balance"))
		assert.Equal(t, payout.StatusFailed, p.Status)
		assert.Equal(t, 1, p.RetryCount)
		assert.False(t, p.Terminal())
	})

	t.Run("return is terminal", func(t *testing.T) {
		svc, store, bus := newTestService(t)
		p := seedPayout(store, payout.MethodBankTransfer, "3333333333")
		require.NoError(t, p.MarkProcessing(time.Now().UTC()))
		require.NoError(t, p.MarkSent("PRV-79"))

		var alerts []events.OperationalAlert
		bus.Subscribe(events.OperationalAlertName, func(_ context.Context, e events.Event) {
			alerts = append(alerts, e.(events.OperationalAlert))
		})

		require.NoError(t, svc.ConfirmPayoutCompletion(context.Background(), "PRV-79", ConfirmationReturned, "account closed"))
		assert.Equal(t, payout.StatusReturned, p.Status)
		assert.True(t, p.Terminal())
		assert.Len(t, alerts, 1)
	})

	t.Run("member failure re-derives the batch status", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		now := time.Now().UTC()

		m1 := seedPayout(store, payout.MethodBankTransfer, "3333333333")
		m2 := seedPayout(store, payout.MethodBankTransfer, "4444555666")
		require.NoError(t, svc.dispatchBankBatch(context.Background(), now, []*payout.Payout{m1, m2}))
		require.Equal(t, payout.StatusSent, m1.Status)

		require.NoError(t, svc.ConfirmPayoutCompletion(context.Background(), m1.Reference, ConfirmationFailed, "rejected downstream"))
		for _, b := range store.BatchesByID {
			assert.Equal(t, payout.BatchPartiallyCompleted, b.Status)
			assert.Equal(t, 1, b.SuccessfulCount)
			assert.Equal(t, 1, b.FailedCount)
		}
	})

	t.Run("unknown reference surfaces not found", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		err := svc.ConfirmPayoutCompletion(context.Background(), "PRV-MISSING", ConfirmationCompleted, "")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestRunRetrySweep(t *testing.T) {
	svc, store, _ := newTestService(t)

	retryable := seedPayout(store, payout.MethodInstantTransfer, "1234567890")
	require.NoError(t, retryable.MarkProcessing(time.Now().UTC()))
	require.NoError(t, retryable.RecordAttemptFailure("transient", "rail down"))

	exhausted := seedPayout(store, payout.MethodInstantTransfer, "1234567890")
	require.NoError(t, exhausted.MarkProcessing(time.Now().UTC()))
	exhausted.ExhaustRetries()
	require.NoError(t, exhausted.RecordAttemptFailure("invalid_account", "no such account"))

	report, err := svc.RunRetrySweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Eligible)
	assert.Equal(t, 1, report.Retried)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 0, report.Failed)

	assert.Equal(t, payout.StatusCompleted, retryable.Status)
	assert.Equal(t, payout.StatusFailed, exhausted.Status)
}
