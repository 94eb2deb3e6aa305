package payout

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewBatchAggregatesTotals(t *testing.T) {
	members := []*Payout{newTestPayout(), newTestPayout(), newTestPayout()}
	b := NewBatch(MethodBankTransfer, time.Now().UTC(), members)

	assert.Equal(t, 3, b.PayoutCount)
	assert.True(t, b.TotalAmount.Equal(decimal.RequireFromString("2985.00")))
	assert.Equal(t, BatchProcessing, b.Status)
}

func TestBatchFinalize(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		failures  int
		want      BatchStatus
	}{
		{"all succeed", 3, 0, BatchCompleted},
		{"all fail", 0, 3, BatchFailed},
		{"mixed", 2, 1, BatchPartiallyCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members := make([]*Payout, tt.successes+tt.failures)
			for i := range members {
				members[i] = newTestPayout()
			}
			b := NewBatch(MethodBankTransfer, time.Now().UTC(), members)
			for i := 0; i < tt.successes; i++ {
				b.RecordOutcome(true)
			}
			for i := 0; i < tt.failures; i++ {
				b.RecordOutcome(false)
			}
			assert.True(t, b.Settled())

			b.Finalize(time.Now().UTC())
			assert.Equal(t, tt.want, b.Status)
			assert.NotNil(t, b.SettledAt)
		})
	}
}
