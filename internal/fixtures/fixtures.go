// Package fixtures provides in-memory repository and unit-of-work
// implementations for service tests. The maps behave like the Postgres
// queries they stand in for; transactional rollback is not simulated.
package fixtures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nilepay/payfac/pkg/domain/ledger"
	"github.com/nilepay/payfac/pkg/domain/merchant"
	"github.com/nilepay/payfac/pkg/domain/payout"
	"github.com/nilepay/payfac/pkg/domain/settlement"
	"github.com/nilepay/payfac/pkg/repository"
)

// Store holds all in-memory state shared by the fixture repositories.
type Store struct {
	mu sync.Mutex

	SubMerchantsByID map[uuid.UUID]*merchant.SubMerchant
	TransactionsByID map[uuid.UUID]*ledger.Transaction
	RefundsByID      map[uuid.UUID]*ledger.Refund
	DisputesByID     map[uuid.UUID]*ledger.Dispute
	ReservesByID     map[uuid.UUID]*ledger.Reserve
	SettlementsByID  map[uuid.UUID]*settlement.Settlement
	ItemsByID        map[uuid.UUID]*settlement.Item
	PayoutsByID      map[uuid.UUID]*payout.Payout
	BatchesByID      map[uuid.UUID]*payout.Batch

	// SettlementCreateHook, when set, can fail settlement creation to
	// exercise error paths.
	SettlementCreateHook func(*settlement.Settlement) error

	// MerchantLockCalls counts DoWithMerchantLock invocations per merchant.
	MerchantLockCalls map[uuid.UUID]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		SubMerchantsByID:  make(map[uuid.UUID]*merchant.SubMerchant),
		TransactionsByID:  make(map[uuid.UUID]*ledger.Transaction),
		RefundsByID:       make(map[uuid.UUID]*ledger.Refund),
		DisputesByID:      make(map[uuid.UUID]*ledger.Dispute),
		ReservesByID:      make(map[uuid.UUID]*ledger.Reserve),
		SettlementsByID:   make(map[uuid.UUID]*settlement.Settlement),
		ItemsByID:         make(map[uuid.UUID]*settlement.Item),
		PayoutsByID:       make(map[uuid.UUID]*payout.Payout),
		BatchesByID:       make(map[uuid.UUID]*payout.Batch),
		MerchantLockCalls: make(map[uuid.UUID]int),
	}
}

// UoW is the in-memory unit of work over a Store.
type UoW struct {
	store *Store
}

// NewUoW creates a unit of work over a fresh store.
func NewUoW() (*UoW, *Store) {
	s := NewStore()
	return &UoW{store: s}, s
}

// Do runs fn directly; the fixture has no transactional isolation.
func (u *UoW) Do(_ context.Context, fn func(uow repository.UnitOfWork) error) error {
	return fn(u)
}

// DoWithMerchantLock serializes on the store mutex and records the call.
func (u *UoW) DoWithMerchantLock(
	_ context.Context,
	subMerchantID uuid.UUID,
	fn func(uow repository.UnitOfWork) error,
) error {
	u.store.mu.Lock()
	u.store.MerchantLockCalls[subMerchantID]++
	u.store.mu.Unlock()
	return fn(u)
}

func (u *UoW) SubMerchants() repository.SubMerchantRepository  { return &subMerchantRepo{u.store} }
func (u *UoW) Transactions() repository.TransactionRepository  { return &transactionRepo{u.store} }
func (u *UoW) Refunds() repository.RefundRepository            { return &refundRepo{u.store} }
func (u *UoW) Disputes() repository.DisputeRepository          { return &disputeRepo{u.store} }
func (u *UoW) Reserves() repository.ReserveRepository          { return &reserveRepo{u.store} }
func (u *UoW) Settlements() repository.SettlementRepository    { return &settlementRepo{u.store} }
func (u *UoW) Payouts() repository.PayoutRepository            { return &payoutRepo{u.store} }
func (u *UoW) PayoutBatches() repository.PayoutBatchRepository { return &batchRepo{u.store} }

type subMerchantRepo struct{ s *Store }

func (r *subMerchantRepo) Get(_ context.Context, id uuid.UUID) (*merchant.SubMerchant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.SubMerchantsByID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return m, nil
}

func (r *subMerchantRepo) ListActive(_ context.Context) ([]*merchant.SubMerchant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*merchant.SubMerchant
	for _, m := range r.s.SubMerchantsByID {
		if m.Status == merchant.StatusActive {
			out = append(out, m)
		}
	}
	sortMerchants(out)
	return out, nil
}

func (r *subMerchantRepo) List(_ context.Context) ([]*merchant.SubMerchant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*merchant.SubMerchant
	for _, m := range r.s.SubMerchantsByID {
		out = append(out, m)
	}
	sortMerchants(out)
	return out, nil
}

func sortMerchants(ms []*merchant.SubMerchant) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].CreatedAt.Before(ms[j].CreatedAt) })
}

func (r *subMerchantRepo) Create(_ context.Context, m *merchant.SubMerchant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.SubMerchantsByID[m.ID] = m
	return nil
}

func (r *subMerchantRepo) Update(_ context.Context, m *merchant.SubMerchant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.SubMerchantsByID[m.ID] = m
	return nil
}

type transactionRepo struct{ s *Store }

func (r *transactionRepo) Create(_ context.Context, t *ledger.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.TransactionsByID[t.ID] = t
	return nil
}

func (r *transactionRepo) UnsettledInPeriod(
	_ context.Context,
	subMerchantID uuid.UUID,
	start, end time.Time,
) ([]*ledger.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*ledger.Transaction
	for _, t := range r.s.TransactionsByID {
		if t.SubMerchantID == subMerchantID && t.SettlementID == nil &&
			!t.CapturedAt.Before(start) && !t.CapturedAt.After(end) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.Before(out[j].CapturedAt) })
	return out, nil
}

func (r *transactionRepo) ClaimForSettlement(_ context.Context, ids []uuid.UUID, settlementID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		if t, ok := r.s.TransactionsByID[id]; ok && t.SettlementID == nil {
			sid := settlementID
			t.SettlementID = &sid
		}
	}
	return nil
}

func (r *transactionRepo) ReleaseFromSettlement(_ context.Context, settlementID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.TransactionsByID {
		if t.SettlementID != nil && *t.SettlementID == settlementID {
			t.SettlementID = nil
		}
	}
	return nil
}

type refundRepo struct{ s *Store }

func (r *refundRepo) Create(_ context.Context, rf *ledger.Refund) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.RefundsByID[rf.ID] = rf
	return nil
}

func (r *refundRepo) UnsettledInPeriod(
	_ context.Context,
	subMerchantID uuid.UUID,
	start, end time.Time,
) ([]*ledger.Refund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*ledger.Refund
	for _, rf := range r.s.RefundsByID {
		if rf.SubMerchantID == subMerchantID && rf.SettlementID == nil &&
			!rf.CompletedAt.Before(start) && !rf.CompletedAt.After(end) {
			out = append(out, rf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}

func (r *refundRepo) ClaimForSettlement(_ context.Context, ids []uuid.UUID, settlementID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		if rf, ok := r.s.RefundsByID[id]; ok && rf.SettlementID == nil {
			sid := settlementID
			rf.SettlementID = &sid
		}
	}
	return nil
}

func (r *refundRepo) ReleaseFromSettlement(_ context.Context, settlementID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rf := range r.s.RefundsByID {
		if rf.SettlementID != nil && *rf.SettlementID == settlementID {
			rf.SettlementID = nil
		}
	}
	return nil
}

type disputeRepo struct{ s *Store }

func (r *disputeRepo) Create(_ context.Context, d *ledger.Dispute) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.DisputesByID[d.ID] = d
	return nil
}

func (r *disputeRepo) UnsettledLostInPeriod(
	_ context.Context,
	subMerchantID uuid.UUID,
	start, end time.Time,
) ([]*ledger.Dispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*ledger.Dispute
	for _, d := range r.s.DisputesByID {
		if d.SubMerchantID == subMerchantID && d.SettlementID == nil &&
			d.Outcome == ledger.DisputeLost &&
			!d.ResolvedAt.Before(start) && !d.ResolvedAt.After(end) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResolvedAt.Before(out[j].ResolvedAt) })
	return out, nil
}

func (r *disputeRepo) ClaimForSettlement(_ context.Context, ids []uuid.UUID, settlementID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		if d, ok := r.s.DisputesByID[id]; ok && d.SettlementID == nil {
			sid := settlementID
			d.SettlementID = &sid
		}
	}
	return nil
}

type reserveRepo struct{ s *Store }

func (r *reserveRepo) Create(_ context.Context, rs *ledger.Reserve) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.ReservesByID[rs.ID] = rs
	return nil
}

func (r *reserveRepo) HeldReleasableBy(
	_ context.Context,
	subMerchantID uuid.UUID,
	asOf time.Time,
) ([]*ledger.Reserve, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*ledger.Reserve
	for _, rs := range r.s.ReservesByID {
		if rs.SubMerchantID == subMerchantID && rs.Releasable(asOf) {
			out = append(out, rs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReleaseDate.Before(out[j].ReleaseDate) })
	return out, nil
}

func (r *reserveRepo) Update(_ context.Context, rs *ledger.Reserve) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.ReservesByID[rs.ID] = rs
	return nil
}

type settlementRepo struct{ s *Store }

func (r *settlementRepo) Create(_ context.Context, st *settlement.Settlement) error {
	r.s.mu.Lock()
	hook := r.s.SettlementCreateHook
	r.s.mu.Unlock()
	if hook != nil {
		if err := hook(st); err != nil {
			return err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.SettlementsByID[st.ID] = st
	return nil
}

func (r *settlementRepo) CreateItems(_ context.Context, items []*settlement.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, i := range items {
		r.s.ItemsByID[i.ID] = i
	}
	return nil
}

func (r *settlementRepo) Get(_ context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.SettlementsByID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return st, nil
}

func (r *settlementRepo) GetItems(_ context.Context, settlementID uuid.UUID) ([]*settlement.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*settlement.Item
	for _, i := range r.s.ItemsByID {
		if i.SettlementID == settlementID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *settlementRepo) Update(_ context.Context, st *settlement.Settlement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.SettlementsByID[st.ID] = st
	return nil
}

func (r *settlementRepo) ListByStatus(_ context.Context, status settlement.Status) ([]*settlement.Settlement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*settlement.Settlement
	for _, st := range r.s.SettlementsByID {
		if st.Status == status {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *settlementRepo) ExistsForPeriod(_ context.Context, subMerchantID uuid.UUID, periodEnd time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, st := range r.s.SettlementsByID {
		if st.SubMerchantID == subMerchantID && st.PeriodEnd.Equal(periodEnd) {
			return true, nil
		}
	}
	return false, nil
}

type payoutRepo struct{ s *Store }

func (r *payoutRepo) Create(_ context.Context, p *payout.Payout) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.PayoutsByID[p.ID] = p
	return nil
}

func (r *payoutRepo) Get(_ context.Context, id uuid.UUID) (*payout.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.PayoutsByID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *payoutRepo) GetByProcessorReference(_ context.Context, processorRef string) (*payout.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.PayoutsByID {
		if p.ProcessorReference == processorRef {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *payoutRepo) Update(_ context.Context, p *payout.Payout) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.PayoutsByID[p.ID] = p
	return nil
}

func (r *payoutRepo) DueForDispatch(_ context.Context, date time.Time) ([]*payout.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*payout.Payout
	for _, p := range r.s.PayoutsByID {
		if p.Status == payout.StatusApproved && !p.ScheduledDate.After(date) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	return out, nil
}

func (r *payoutRepo) FailedRetryable(_ context.Context) ([]*payout.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*payout.Payout
	for _, p := range r.s.PayoutsByID {
		if p.Status == payout.StatusFailed && p.RetryCount < p.MaxRetries {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (r *payoutRepo) ListBySubMerchant(_ context.Context, subMerchantID uuid.UUID) ([]*payout.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*payout.Payout
	for _, p := range r.s.PayoutsByID {
		if p.SubMerchantID == subMerchantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type batchRepo struct{ s *Store }

func (r *batchRepo) Create(_ context.Context, b *payout.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.BatchesByID[b.ID] = b
	return nil
}

func (r *batchRepo) Get(_ context.Context, id uuid.UUID) (*payout.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.BatchesByID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return b, nil
}

func (r *batchRepo) Update(_ context.Context, b *payout.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.BatchesByID[b.ID] = b
	return nil
}

var _ repository.UnitOfWork = (*UoW)(nil)
