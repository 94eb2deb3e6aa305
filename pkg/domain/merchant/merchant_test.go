package merchant

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleLengthDays(t *testing.T) {
	tests := []struct {
		cycle SettlementCycle
		want  int
	}{
		{CycleD0, 1},
		{CycleD1, 1},
		{CycleD2, 1},
		{CycleD3, 1},
		{CycleWeekly, 7},
		{CycleBiweekly, 14},
		{CycleMonthly, 30},
	}
	for _, tt := range tests {
		m := &SubMerchant{SettlementCycle: tt.cycle}
		assert.Equal(t, tt.want, m.CycleLengthDays(), string(tt.cycle))
	}
}

func TestPayoutDelayDays(t *testing.T) {
	tests := []struct {
		cycle SettlementCycle
		want  int
	}{
		{CycleD0, 0},
		{CycleD1, 1},
		{CycleD2, 2},
		{CycleD3, 3},
		{CycleWeekly, 0},
		{CycleMonthly, 0},
	}
	for _, tt := range tests {
		m := &SubMerchant{SettlementCycle: tt.cycle}
		assert.Equal(t, tt.want, m.PayoutDelayDays(), string(tt.cycle))
	}
}

func TestSuspendReactivate(t *testing.T) {
	m := &SubMerchant{ID: uuid.New(), Status: StatusActive, CreatedAt: time.Now().UTC()}

	require.NoError(t, m.Suspend())
	assert.Equal(t, StatusSuspended, m.Status)
	assert.Error(t, m.Suspend())

	require.NoError(t, m.Reactivate())
	assert.Equal(t, StatusActive, m.Status)
	assert.Error(t, m.Reactivate())
}
