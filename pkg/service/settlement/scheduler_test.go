package settlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraeventbus "github.com/nilepay/payfac/infra/eventbus"
	"github.com/nilepay/payfac/internal/fixtures"
	"github.com/nilepay/payfac/pkg/domain/merchant"
	domainsettlement "github.com/nilepay/payfac/pkg/domain/settlement"
	settlementsvc "github.com/nilepay/payfac/pkg/service/settlement"
)

func TestRunForDateIsolatesFailures(t *testing.T) {
	uow, store := fixtures.NewUoW()
	bus := infraeventbus.NewMemoryBus(testLogger())
	svc := settlementsvc.New(uow, bus, testConfig(), testLogger())
	sched := settlementsvc.NewScheduler(uow, svc, 4, testLogger())

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) // a Friday
	noon := date.Add(12 * time.Hour)

	healthy := newDailyMerchant(store)
	addTransaction(store, healthy, "500.00", "10.00", "5.00", noon)

	poisoned := newDailyMerchant(store)
	addTransaction(store, poisoned, "800.00", "16.00", "8.00", noon)

	notDue := newDailyMerchant(store)
	notDue.SettlementCycle = merchant.CycleWeekly
	notDue.SettlementDayOfWeek = time.Sunday
	addTransaction(store, notDue, "300.00", "6.00", "3.00", noon)

	store.SettlementCreateHook = func(st *domainsettlement.Settlement) error {
		if st.SubMerchantID == poisoned.ID {
			return errors.New("constraint violation")
		}
		return nil
	}

	report, err := sched.RunForDate(context.Background(), date)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Merchants)
	assert.Equal(t, 2, report.Due)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Skipped)

	// Only the healthy merchant's settlement landed.
	require.Len(t, store.SettlementsByID, 1)
	for _, st := range store.SettlementsByID {
		assert.Equal(t, healthy.ID, st.SubMerchantID)
	}

	// Each due merchant ran under its own advisory lock.
	assert.Equal(t, 1, store.MerchantLockCalls[healthy.ID])
	assert.Equal(t, 1, store.MerchantLockCalls[poisoned.ID])
	assert.Zero(t, store.MerchantLockCalls[notDue.ID])
}

func TestRunForDateCountsSkips(t *testing.T) {
	uow, store := fixtures.NewUoW()
	bus := infraeventbus.NewMemoryBus(testLogger())
	svc := settlementsvc.New(uow, bus, testConfig(), testLogger())
	sched := settlementsvc.NewScheduler(uow, svc, 2, testLogger())

	// Due every day but no ledger activity.
	newDailyMerchant(store)

	report, err := sched.RunForDate(context.Background(), time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Created)
	assert.Empty(t, store.SettlementsByID)
}
