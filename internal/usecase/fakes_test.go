package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/internal/provider"
	"settlement-service/internal/pub"
	"settlement-service/internal/repository"

	"go.uber.org/zap"
)

// In-memory doubles for the persistence and processor edges. They enforce the
// same status and uniqueness rules as the real implementations so the
// usecases can be exercised end to end.

type fakeEngagements struct {
	mu sync.Mutex
	m  map[string]*domain.Engagement
}

func newFakeEngagements() *fakeEngagements {
	return &fakeEngagements{m: map[string]*domain.Engagement{}}
}

func (f *fakeEngagements) Create(ctx context.Context, e *domain.Engagement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.m[e.ID] = &cp
	return nil
}

func (f *fakeEngagements) GetByID(ctx context.Context, id string) (*domain.Engagement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEngagements) UpdateStatus(ctx context.Context, id string, from, to domain.EngagementStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.m[id]
	if !ok || e.Status != from {
		return domain.ErrInvalidTransition
	}
	e.Status = to
	return nil
}

func (f *fakeEngagements) AssignWorker(ctx context.Context, id, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.m[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.WorkerID = workerID
	return nil
}

func (f *fakeEngagements) IncrementRevisions(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.m[id]
	if !ok || e.RevisionsUsed >= e.MaxRevisions {
		return domain.ErrRevisionLimitReached
	}
	e.RevisionsUsed++
	return nil
}

type fakeEscrows struct {
	mu sync.Mutex
	m  map[string]*domain.Escrow // keyed by engagement id
}

func newFakeEscrows() *fakeEscrows {
	return &fakeEscrows{m: map[string]*domain.Escrow{}}
}

func (f *fakeEscrows) Create(ctx context.Context, e *domain.Escrow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.m[e.EngagementID] = &cp
	return nil
}

func (f *fakeEscrows) GetByEngagementID(ctx context.Context, engagementID string) (*domain.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.m[engagementID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEscrows) MarkDisputed(ctx context.Context, engagementID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.m[engagementID]
	if !ok || e.Status != domain.EscrowFunded {
		return domain.ErrNotFunded
	}
	e.Status = domain.EscrowDisputed
	return nil
}

type fakeTransactions struct {
	mu   sync.Mutex
	rows []*domain.Transaction
}

func newFakeTransactions() *fakeTransactions {
	return &fakeTransactions{}
}

func (f *fakeTransactions) insert(t *domain.Transaction) error {
	for _, r := range f.rows {
		if r.Type == t.Type && r.ExternalReference == t.ExternalReference && r.Status == domain.TransactionCompleted {
			return domain.ErrDuplicateReference
		}
	}
	cp := *t
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeTransactions) Create(ctx context.Context, t *domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(t)
}

func (f *fakeTransactions) ListByEngagement(ctx context.Context, engagementID string) ([]*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Transaction
	for _, r := range f.rows {
		if r.EngagementID == engagementID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeTransactions) ExistsCompletedByReference(ctx context.Context, txType domain.TransactionType, externalRef string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.Type == txType && r.ExternalReference == externalRef && r.Status == domain.TransactionCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTransactions) byType(txType domain.TransactionType) []*domain.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Transaction
	for _, r := range f.rows {
		if r.Type == txType {
			out = append(out, r)
		}
	}
	return out
}

type fakePayouts struct {
	mu sync.Mutex
	m  map[string]*domain.Payout
}

func newFakePayouts() *fakePayouts {
	return &fakePayouts{m: map[string]*domain.Payout{}}
}

func (f *fakePayouts) Create(ctx context.Context, p *domain.Payout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	f.m[p.ID] = &cp
	return nil
}

func (f *fakePayouts) GetByID(ctx context.Context, id string) (*domain.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayouts) GetByExternalTransferID(ctx context.Context, transferID string) (*domain.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.m {
		if p.ExternalTransferID == transferID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakePayouts) ListAccumulated(ctx context.Context, workerID string) ([]*domain.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Payout
	for _, p := range f.m {
		if p.WorkerID == workerID && p.Status == domain.PayoutPending && p.PendingReason == domain.PendingBelowThreshold {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakePayouts) ListFailed(ctx context.Context, limit int) ([]*domain.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Payout
	for _, p := range f.m {
		if p.Status == domain.PayoutFailed && len(out) < limit {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakePayouts) WorkersOverThreshold(ctx context.Context, threshold int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type bucket struct{ worker, currency string }
	sums := map[bucket]int64{}
	for _, p := range f.m {
		if p.Status == domain.PayoutPending && p.PendingReason == domain.PendingBelowThreshold {
			sums[bucket{p.WorkerID, p.Currency}] += p.Amount
		}
	}
	seen := map[string]bool{}
	var out []string
	for b, sum := range sums {
		if sum >= threshold && !seen[b.worker] {
			seen[b.worker] = true
			out = append(out, b.worker)
		}
	}
	return out, nil
}

func (f *fakePayouts) CompleteBatch(ctx context.Context, ids []string, transferID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		p, ok := f.m[id]
		if !ok || p.Status != domain.PayoutPending {
			return domain.ErrPayoutNotRetryable
		}
	}
	now := time.Now()
	for _, id := range ids {
		p := f.m[id]
		p.Status = domain.PayoutCompleted
		p.ExternalTransferID = transferID
		p.PendingReason = ""
		p.CompletedAt = &now
	}
	return nil
}

func (f *fakePayouts) Supersede(ctx context.Context, failedID string, replacement *domain.Payout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.m[failedID]
	if !ok || p.Status != domain.PayoutFailed {
		return domain.ErrPayoutNotRetryable
	}
	delete(f.m, failedID)
	cp := *replacement
	f.m[replacement.ID] = &cp
	return nil
}

func (f *fakePayouts) UpdateFailureReason(ctx context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.m[id]; ok && p.Status == domain.PayoutFailed {
		p.FailureReason = reason
	}
	return nil
}

type fakeAccounts struct {
	mu sync.Mutex
	m  map[string]*domain.PayoutAccount
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{m: map[string]*domain.PayoutAccount{}}
}

func (f *fakeAccounts) GetByWorkerID(ctx context.Context, workerID string) (*domain.PayoutAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.m[workerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) Upsert(ctx context.Context, a *domain.PayoutAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.m[a.WorkerID] = &cp
	return nil
}

func (f *fakeAccounts) SetPayoutsEnabled(ctx context.Context, workerID string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.m[workerID]
	if !ok {
		return domain.ErrNotFound
	}
	a.PayoutsEnabled = enabled
	return nil
}

// fakeStore mirrors the real store's all-or-nothing semantics over the fake
// escrow and transaction state.
type fakeStore struct {
	escrows      *fakeEscrows
	transactions *fakeTransactions
	payouts      *fakePayouts
}

func (s *fakeStore) FundEscrow(ctx context.Context, p repository.FundParams) (*domain.Escrow, error) {
	s.escrows.mu.Lock()
	defer s.escrows.mu.Unlock()

	now := time.Now()
	escrow, ok := s.escrows.m[p.EngagementID]
	if !ok {
		escrow = &domain.Escrow{
			ID:           p.EscrowID,
			EngagementID: p.EngagementID,
			Amount:       p.Amount,
			Currency:     p.Currency,
			Status:       domain.EscrowPending,
			CreatedAt:    now,
		}
		s.escrows.m[p.EngagementID] = escrow
	}
	if escrow.Status != domain.EscrowPending {
		return nil, domain.ErrAlreadyFunded
	}

	s.transactions.mu.Lock()
	err := s.transactions.insert(&domain.Transaction{
		ID:                p.TransactionID,
		EngagementID:      p.EngagementID,
		UserID:            p.ClientID,
		Type:              domain.TransactionTypeDeposit,
		Amount:            p.Amount,
		Currency:          p.Currency,
		ExternalReference: p.ChargeReference,
		Status:            domain.TransactionCompleted,
		Description:       "escrow funding",
	})
	s.transactions.mu.Unlock()
	if err != nil {
		return nil, err
	}

	escrow.Status = domain.EscrowFunded
	escrow.Amount = p.Amount
	escrow.FundedAt = &now
	cp := *escrow
	return &cp, nil
}

func (s *fakeStore) ReleaseEscrow(ctx context.Context, p repository.ReleaseParams) (*domain.Escrow, error) {
	s.escrows.mu.Lock()
	defer s.escrows.mu.Unlock()

	escrow, ok := s.escrows.m[p.EngagementID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if escrow.Status != domain.EscrowFunded {
		return nil, domain.ErrNotFunded
	}
	if p.HeldAmount != 0 && escrow.Amount != p.HeldAmount {
		return nil, domain.ErrHeldAmountMismatch
	}

	s.transactions.mu.Lock()
	err := s.transactions.insert(&domain.Transaction{
		ID: p.WithdrawalTxID, EngagementID: p.EngagementID, UserID: p.WorkerID,
		Type: domain.TransactionTypeWithdrawal, Amount: p.WorkerNet, Currency: escrow.Currency,
		ExternalReference: p.Reference, Status: domain.TransactionCompleted,
	})
	if err == nil {
		err = s.transactions.insert(&domain.Transaction{
			ID: p.FeeTxID, EngagementID: p.EngagementID, UserID: domain.PlatformUserID,
			Type: domain.TransactionTypeFee, Amount: p.PlatformTotal, Currency: escrow.Currency,
			ExternalReference: p.Reference, Status: domain.TransactionCompleted,
		})
	}
	s.transactions.mu.Unlock()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	escrow.Status = domain.EscrowReleased
	escrow.ReleasedAt = &now

	if p.Payout != nil {
		if err := s.payouts.Create(ctx, p.Payout); err != nil {
			return nil, err
		}
	}
	cp := *escrow
	return &cp, nil
}

func (s *fakeStore) RefundEscrow(ctx context.Context, p repository.RefundParams) (*domain.Escrow, *domain.Transaction, error) {
	s.escrows.mu.Lock()
	defer s.escrows.mu.Unlock()

	escrow, ok := s.escrows.m[p.EngagementID]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	if !escrow.Refundable() {
		return nil, nil, domain.ErrNotRefundable
	}

	refund := &domain.Transaction{
		ID: p.TransactionID, EngagementID: p.EngagementID, UserID: p.ClientID,
		Type: domain.TransactionTypeRefund, Amount: escrow.Amount, Currency: escrow.Currency,
		ExternalReference: p.Reference, Status: domain.TransactionCompleted, Description: p.Reason,
	}
	s.transactions.mu.Lock()
	err := s.transactions.insert(refund)
	s.transactions.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	escrow.Status = domain.EscrowRefunded
	cp := *escrow
	return &cp, refund, nil
}

type transferCall struct {
	req provider.TransferRequest
}

type fakeProcessor struct {
	mu          sync.Mutex
	charges     []provider.ChargeRequest
	transfers   []transferCall
	reversals   []provider.ReversalRequest
	chargeErr   error
	transferErr error
	manualRail  bool
	subAccounts map[string]*provider.SubAccount
	seq         int
}

func (f *fakeProcessor) Name() string { return "fake" }

func (f *fakeProcessor) Charge(ctx context.Context, req provider.ChargeRequest) (*provider.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	f.charges = append(f.charges, req)
	f.seq++
	return &provider.ChargeResult{ChargeID: fmt.Sprintf("ch_%d", f.seq), Status: "succeeded"}, nil
}

func (f *fakeProcessor) Transfer(ctx context.Context, req provider.TransferRequest) (*provider.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	f.transfers = append(f.transfers, transferCall{req: req})
	f.seq++
	return &provider.TransferResult{TransferID: fmt.Sprintf("tr_%d", f.seq)}, nil
}

func (f *fakeProcessor) ReverseTransfer(ctx context.Context, req provider.ReversalRequest) (*provider.ReversalResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reversals = append(f.reversals, req)
	f.seq++
	return &provider.ReversalResult{ReversalID: fmt.Sprintf("trr_%d", f.seq)}, nil
}

func (f *fakeProcessor) CreateSubAccount(ctx context.Context, req provider.SubAccountRequest) (*provider.SubAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return &provider.SubAccount{AccountID: fmt.Sprintf("acct_%d", f.seq), PayoutsEnabled: true, Manual: f.manualRail}, nil
}

func (f *fakeProcessor) GetSubAccount(ctx context.Context, accountID string) (*provider.SubAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subAccounts[accountID]; ok {
		cp := *sub
		return &cp, nil
	}
	return &provider.SubAccount{AccountID: accountID}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []pub.SettlementEvent
}

func (f *fakePublisher) Publish(ctx context.Context, event pub.SettlementEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

// testEnv bundles the doubles with fully wired usecases.
type testEnv struct {
	engagements  *fakeEngagements
	escrows      *fakeEscrows
	transactions *fakeTransactions
	payouts      *fakePayouts
	accounts     *fakeAccounts
	processor    *fakeProcessor
	publisher    *fakePublisher

	settlement *SettlementUsecase
	engagement *EngagementUsecase
}

func newTestEnv() *testEnv {
	env := &testEnv{
		engagements:  newFakeEngagements(),
		escrows:      newFakeEscrows(),
		transactions: newFakeTransactions(),
		payouts:      newFakePayouts(),
		accounts:     newFakeAccounts(),
		processor:    &fakeProcessor{},
		publisher:    &fakePublisher{},
	}
	store := &fakeStore{escrows: env.escrows, transactions: env.transactions, payouts: env.payouts}
	logger := zap.NewNop()

	env.settlement = NewSettlementUsecase(
		env.engagements, env.escrows, env.transactions, env.payouts, env.accounts,
		store, env.processor, env.publisher, nil, logger,
	)
	env.engagement = NewEngagementUsecase(
		env.engagements, env.escrows, env.transactions, env.settlement, env.processor, logger,
	)
	return env
}

func (env *testEnv) seedEngagement(id string, status domain.EngagementStatus, base int64) *domain.Engagement {
	eng := &domain.Engagement{
		ID:           id,
		Kind:         domain.EngagementKindProject,
		ClientID:     "client-1",
		WorkerID:     "worker-1",
		BaseAmount:   base,
		Currency:     "USD",
		Status:       status,
		MaxRevisions: 2,
	}
	_ = env.engagements.Create(context.Background(), eng)
	return eng
}

func (env *testEnv) seedFundedEscrow(engagementID string, amount int64) {
	now := time.Now()
	_ = env.escrows.Create(context.Background(), &domain.Escrow{
		ID:           "ESC-" + engagementID,
		EngagementID: engagementID,
		Amount:       amount,
		Currency:     "USD",
		Status:       domain.EscrowFunded,
		FundedAt:     &now,
	})
}

func (env *testEnv) seedAccount(workerID string, enabled bool) {
	_ = env.accounts.Upsert(context.Background(), &domain.PayoutAccount{
		WorkerID:       workerID,
		Provider:       "fake",
		AccountID:      "acct_" + workerID,
		Method:         domain.PayoutMethodSubAccount,
		PayoutsEnabled: enabled,
	})
}
