package settlement_test

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraeventbus "github.com/nilepay/payfac/infra/eventbus"
	"github.com/nilepay/payfac/internal/fixtures"
	"github.com/nilepay/payfac/pkg/config"
	"github.com/nilepay/payfac/pkg/domain/events"
	"github.com/nilepay/payfac/pkg/domain/ledger"
	"github.com/nilepay/payfac/pkg/domain/merchant"
	domainsettlement "github.com/nilepay/payfac/pkg/domain/settlement"
	"github.com/nilepay/payfac/pkg/eventbus"
	settlementsvc "github.com/nilepay/payfac/pkg/service/settlement"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig() config.Settlement {
	return config.Settlement{AutoApproveMax: 50000, RiskCeiling: 70, Concurrency: 4}
}

func newService(t *testing.T) (*settlementsvc.Service, *fixtures.Store, eventbus.Bus) {
	t.Helper()
	uow, store := fixtures.NewUoW()
	bus := infraeventbus.NewMemoryBus(testLogger())
	svc := settlementsvc.New(uow, bus, testConfig(), testLogger())
	return svc, store, bus
}

func newDailyMerchant(store *fixtures.Store) *merchant.SubMerchant {
	m := &merchant.SubMerchant{
		ID:                  uuid.New(),
		Name:                "Cairo Corner Store",
		Status:              merchant.StatusActive,
		SettlementCycle:     merchant.CycleD1,
		ReservePercentage:   d("0.10"),
		ReserveDays:         90,
		MinimumPayoutAmount: d("50.00"),
		CreatedAt:           time.Now().UTC(),
	}
	store.SubMerchantsByID[m.ID] = m
	return m
}

func addTransaction(store *fixtures.Store, m *merchant.SubMerchant, amount, procFee, platFee string, at time.Time) *ledger.Transaction {
	t := &ledger.Transaction{
		ID:            uuid.New(),
		SubMerchantID: m.ID,
		Amount:        d(amount),
		ProcessorFee:  d(procFee),
		PlatformFee:   d(platFee),
		Currency:      "EGP",
		Reference:     uuid.NewString(),
		CapturedAt:    at,
		CreatedAt:     at,
	}
	store.TransactionsByID[t.ID] = t
	return t
}

func TestShouldSettleToday(t *testing.T) {
	svc, _, _ := newService(t)

	sunday := time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC) // ISO week 1
	nextSunday := sunday.AddDate(0, 0, 7)                  // ISO week 2
	monday := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		m    merchant.SubMerchant
		date time.Time
		want bool
	}{
		{"daily D+0 always due", merchant.SubMerchant{SettlementCycle: merchant.CycleD0}, monday, true},
		{"daily D+1 always due", merchant.SubMerchant{SettlementCycle: merchant.CycleD1}, sunday, true},
		{"daily D+3 always due", merchant.SubMerchant{SettlementCycle: merchant.CycleD3}, nextSunday, true},
		{
			"weekly due on configured weekday",
			merchant.SubMerchant{SettlementCycle: merchant.CycleWeekly, SettlementDayOfWeek: time.Sunday},
			sunday, true,
		},
		{
			"weekly not due on other days",
			merchant.SubMerchant{SettlementCycle: merchant.CycleWeekly, SettlementDayOfWeek: time.Sunday},
			monday, false,
		},
		{
			"biweekly due on matching parity",
			merchant.SubMerchant{SettlementCycle: merchant.CycleBiweekly, SettlementDayOfWeek: time.Sunday, SettlementWeekParity: 1},
			sunday, true,
		},
		{
			"biweekly skips the off week",
			merchant.SubMerchant{SettlementCycle: merchant.CycleBiweekly, SettlementDayOfWeek: time.Sunday, SettlementWeekParity: 1},
			nextSunday, false,
		},
		{
			"monthly due on configured day",
			merchant.SubMerchant{SettlementCycle: merchant.CycleMonthly, SettlementDayOfMonth: 1},
			monday, true,
		},
		{
			"monthly not due on other days",
			merchant.SubMerchant{SettlementCycle: merchant.CycleMonthly, SettlementDayOfMonth: 15},
			monday, false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.m
			assert.Equal(t, tt.want, svc.ShouldSettleToday(&m, tt.date))
		})
	}
}

func TestSettlementPeriod(t *testing.T) {
	svc, _, _ := newService(t)
	date := time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC)

	tests := []struct {
		name      string
		cycle     merchant.SettlementCycle
		wantStart time.Time
	}{
		{"daily covers one day", merchant.CycleD1, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"weekly covers seven days", merchant.CycleWeekly, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)},
		{"biweekly covers fourteen days", merchant.CycleBiweekly, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"monthly covers thirty days", merchant.CycleMonthly, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &merchant.SubMerchant{SettlementCycle: tt.cycle}
			start, end := svc.SettlementPeriod(m, date)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond), end)
		})
	}
}

func TestCalculateForMerchantConservation(t *testing.T) {
	svc, store, _ := newService(t)
	m := newDailyMerchant(store)
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	noon := date.Add(12 * time.Hour)

	addTransaction(store, m, "600.00", "12.00", "6.00", noon)
	addTransaction(store, m, "400.00", "8.00", "4.00", noon)

	refund := &ledger.Refund{
		ID: uuid.New(), SubMerchantID: m.ID,
		Amount: d("100.00"), RefundFee: d("5.00"), CompletedAt: noon,
	}
	store.RefundsByID[refund.ID] = refund

	dispute := &ledger.Dispute{
		ID: uuid.New(), SubMerchantID: m.ID,
		Amount: d("50.00"), DisputeFee: d("15.00"),
		Outcome: ledger.DisputeLost, ResolvedAt: noon,
	}
	store.DisputesByID[dispute.ID] = dispute

	mature := &ledger.Reserve{
		ID: uuid.New(), SubMerchantID: m.ID, SettlementID: uuid.New(),
		Amount: d("30.00"), ReleaseDate: date, Status: ledger.ReserveHeld,
	}
	store.ReservesByID[mature.ID] = mature

	st, err := svc.CalculateForMerchant(context.Background(), m, date)
	require.NoError(t, err)
	require.NotNil(t, st)

	assert.True(t, st.GrossSales.Equal(d("1000.00")), "gross sales %s", st.GrossSales)
	assert.True(t, st.GrossAmount.Equal(d("850.00")), "gross amount %s", st.GrossAmount)
	assert.True(t, st.TotalFees.Equal(d("50.00")), "total fees %s", st.TotalFees)
	assert.True(t, st.ReserveHeld.Equal(d("100.00")), "reserve held %s", st.ReserveHeld)
	assert.True(t, st.ReserveReleased.Equal(d("30.00")), "reserve released %s", st.ReserveReleased)
	assert.True(t, st.NetAmount.Equal(d("730.00")), "net %s", st.NetAmount)
	assert.True(t, st.Consistent())
	assert.Equal(t, 2, st.TransactionCount)
	assert.Equal(t, 1, st.RefundCount)
	assert.Equal(t, 1, st.DisputeCount)

	// Line item nets reproduce the settlement net.
	var itemNet decimal.Decimal
	for _, i := range store.ItemsByID {
		itemNet = itemNet.Add(i.Net)
	}
	assert.True(t, itemNet.Equal(st.NetAmount), "items net %s vs %s", itemNet, st.NetAmount)

	// Auto-approved under the threshold with no risk score.
	assert.Equal(t, domainsettlement.StatusApproved, st.Status)

	// Contributing rows are claimed, the mature reserve released, and a new
	// hold created.
	for _, txn := range store.TransactionsByID {
		require.NotNil(t, txn.SettlementID)
		assert.Equal(t, st.ID, *txn.SettlementID)
	}
	require.NotNil(t, refund.SettlementID)
	require.NotNil(t, dispute.SettlementID)
	assert.Equal(t, ledger.ReserveReleased, mature.Status)
	require.NotNil(t, mature.ReleasedBySettlementID)
	assert.Equal(t, st.ID, *mature.ReleasedBySettlementID)

	var hold *ledger.Reserve
	for _, r := range store.ReservesByID {
		if r.ID != mature.ID {
			hold = r
		}
	}
	require.NotNil(t, hold)
	assert.True(t, hold.Amount.Equal(d("100.00")))
	assert.Equal(t, date.AddDate(0, 0, 90), hold.ReleaseDate)
	assert.Equal(t, ledger.ReserveHeld, hold.Status)
}

func TestConservationHoldsForRandomizedLedgers(t *testing.T) {
	rng := rand.New(rand.NewSource(20240315))
	cents := func(min, max int) decimal.Decimal {
		return decimal.NewFromInt(int64(min + rng.Intn(max-min+1))).Div(decimal.NewFromInt(100))
	}

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	noon := date.Add(12 * time.Hour)

	for i := 0; i < 50; i++ {
		svc, store, _ := newService(t)
		m := newDailyMerchant(store)
		m.MinimumPayoutAmount = decimal.Zero

		for n := rng.Intn(6) + 1; n > 0; n-- {
			txn := &ledger.Transaction{
				ID: uuid.New(), SubMerchantID: m.ID,
				Amount:       cents(10000, 500000),
				ProcessorFee: cents(0, 2000),
				PlatformFee:  cents(0, 2000),
				Currency:     "EGP", Reference: uuid.NewString(),
				CapturedAt: noon, CreatedAt: noon,
			}
			store.TransactionsByID[txn.ID] = txn
		}
		for n := rng.Intn(4); n > 0; n-- {
			refund := &ledger.Refund{
				ID: uuid.New(), SubMerchantID: m.ID,
				Amount:      cents(100, 10000),
				RefundFee:   cents(0, 500),
				CompletedAt: noon, CreatedAt: noon,
			}
			store.RefundsByID[refund.ID] = refund
		}
		for n := rng.Intn(3); n > 0; n-- {
			dispute := &ledger.Dispute{
				ID: uuid.New(), SubMerchantID: m.ID,
				Amount:     cents(100, 5000),
				DisputeFee: cents(0, 1500),
				Outcome:    ledger.DisputeLost,
				ResolvedAt: noon, CreatedAt: noon,
			}
			store.DisputesByID[dispute.ID] = dispute
		}
		// A mature reserve forces the run even when the random net is tiny.
		mature := &ledger.Reserve{
			ID: uuid.New(), SubMerchantID: m.ID, SettlementID: uuid.New(),
			Amount: cents(100, 5000), ReleaseDate: date.AddDate(0, 0, -1),
			Status: ledger.ReserveHeld,
		}
		store.ReservesByID[mature.ID] = mature

		st, err := svc.CalculateForMerchant(context.Background(), m, date)
		require.NoError(t, err, "iteration %d", i)
		require.NotNil(t, st, "iteration %d", i)

		assert.True(t, st.Consistent(),
			"iteration %d: gross %s fees %s held %s released %s net %s",
			i, st.GrossAmount, st.TotalFees, st.ReserveHeld, st.ReserveReleased, st.NetAmount)
		assert.True(t, st.NetAmount.Equal(st.NetAmount.Round(2)),
			"iteration %d: net must be exact to two places, got %s", i, st.NetAmount)

		var itemNet decimal.Decimal
		for _, item := range store.ItemsByID {
			itemNet = itemNet.Add(item.Net)
		}
		assert.True(t, itemNet.Equal(st.NetAmount),
			"iteration %d: items sum to %s, settlement net %s", i, itemNet, st.NetAmount)
	}
}

func TestCalculateForMerchantRunTwiceIsIdempotent(t *testing.T) {
	svc, store, _ := newService(t)
	m := newDailyMerchant(store)
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	addTransaction(store, m, "500.00", "10.00", "5.00", date.Add(10*time.Hour))

	first, err := svc.CalculateForMerchant(context.Background(), m, date)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.CalculateForMerchant(context.Background(), m, date)
	require.NoError(t, err)
	assert.Nil(t, second, "second run for the same period must be a no-op")
	assert.Len(t, store.SettlementsByID, 1)
}

func TestCalculateForMerchantSkipsQuietAndBelowMinimumPeriods(t *testing.T) {
	svc, store, _ := newService(t)
	m := newDailyMerchant(store)
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	// No activity at all.
	st, err := svc.CalculateForMerchant(context.Background(), m, date)
	require.NoError(t, err)
	assert.Nil(t, st)

	// Net below the merchant minimum.
	addTransaction(store, m, "20.00", "0.40", "0.20", date.Add(9*time.Hour))
	st, err = svc.CalculateForMerchant(context.Background(), m, date)
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.Empty(t, store.SettlementsByID)

	// A releasable reserve forces the run even below the minimum.
	r := &ledger.Reserve{
		ID: uuid.New(), SubMerchantID: m.ID, SettlementID: uuid.New(),
		Amount: d("10.00"), ReleaseDate: date.AddDate(0, 0, -1), Status: ledger.ReserveHeld,
	}
	store.ReservesByID[r.ID] = r

	st, err = svc.CalculateForMerchant(context.Background(), m, date)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.ReserveReleased.Equal(d("10.00")))
}

func TestAutoApprovalRules(t *testing.T) {
	high := 85
	low := 40
	tests := []struct {
		name       string
		net        string
		riskScore  *int
		wantStatus domainsettlement.Status
	}{
		{"small net, unscored", "1000.00", nil, domainsettlement.StatusApproved},
		{"small net, low risk", "1000.00", &low, domainsettlement.StatusApproved},
		{"small net, high risk", "1000.00", &high, domainsettlement.StatusCalculated},
		{"net above threshold", "90000.00", nil, domainsettlement.StatusCalculated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newService(t)
			m := newDailyMerchant(store)
			m.ReservePercentage = decimal.Zero
			m.RiskScore = tt.riskScore
			date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
			addTransaction(store, m, tt.net, "0.00", "0.00", date.Add(8*time.Hour))

			st, err := svc.CalculateForMerchant(context.Background(), m, date)
			require.NoError(t, err)
			require.NotNil(t, st)
			assert.Equal(t, tt.wantStatus, st.Status)
		})
	}
}

func TestSettlementCreatedEventPublished(t *testing.T) {
	svc, store, bus := newService(t)
	m := newDailyMerchant(store)
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	addTransaction(store, m, "500.00", "10.00", "5.00", date.Add(10*time.Hour))

	var got []events.SettlementCreated
	bus.Subscribe(events.SettlementCreatedName, func(_ context.Context, e events.Event) {
		if ev, ok := e.(events.SettlementCreated); ok {
			got = append(got, ev)
		}
	})

	st, err := svc.CalculateForMerchant(context.Background(), m, date)
	require.NoError(t, err)
	require.NotNil(t, st)

	require.Len(t, got, 1)
	assert.Equal(t, st.ID, got[0].SettlementID)
	assert.True(t, got[0].AutoApproved)
}

func TestRejectRevertsTransactionsAndRefundsOnly(t *testing.T) {
	svc, store, _ := newService(t)
	m := newDailyMerchant(store)
	m.RiskScore = intPtr(90) // keep it in calculated for the reject path
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	noon := date.Add(12 * time.Hour)

	txn := addTransaction(store, m, "600.00", "12.00", "6.00", noon)
	refund := &ledger.Refund{
		ID: uuid.New(), SubMerchantID: m.ID,
		Amount: d("50.00"), RefundFee: d("5.00"), CompletedAt: noon,
	}
	store.RefundsByID[refund.ID] = refund
	dispute := &ledger.Dispute{
		ID: uuid.New(), SubMerchantID: m.ID,
		Amount: d("20.00"), DisputeFee: d("10.00"),
		Outcome: ledger.DisputeLost, ResolvedAt: noon,
	}
	store.DisputesByID[dispute.ID] = dispute

	st, err := svc.CalculateForMerchant(context.Background(), m, date)
	require.NoError(t, err)
	require.NotNil(t, st)
	require.Equal(t, domainsettlement.StatusCalculated, st.Status)

	rejected, err := svc.Reject(context.Background(), st.ID, "volume anomaly")
	require.NoError(t, err)
	assert.Equal(t, domainsettlement.StatusOnHold, rejected.Status)

	// Transactions and refunds return to the unsettled pool; the dispute
	// stays claimed.
	assert.Nil(t, txn.SettlementID)
	assert.Nil(t, refund.SettlementID)
	require.NotNil(t, dispute.SettlementID)
	assert.Equal(t, st.ID, *dispute.SettlementID)
}

func intPtr(v int) *int { return &v }
