// Package memory provides an in-memory implementation of the ledger store
// for testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lendflow-backend/internal/domain"
)

type walletKey struct {
	owner uuid.UUID
	kind  domain.WalletKind
}

// Store is an in-memory implementation of domain.Store and the read
// repositories. WithinTx serializes on a single mutex and restores a
// snapshot on error, which reproduces the atomicity and serialization
// guarantees the Postgres store gets from transactions and row locks.
type Store struct {
	mu sync.Mutex

	users        map[uuid.UUID]*domain.User
	wallets      map[uuid.UUID]*domain.Wallet
	walletIdx    map[walletKey]uuid.UUID
	loans        map[uuid.UUID]*domain.Loan
	tasks        map[uuid.UUID]*domain.EarnTask
	transactions []*domain.Transaction
	commissions  []*domain.CommissionEvent

	// Error injection for testing error paths
	ErrorOnNextCall error
	FailOn          map[string]error // Tx method name -> error
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:     make(map[uuid.UUID]*domain.User),
		wallets:   make(map[uuid.UUID]*domain.Wallet),
		walletIdx: make(map[walletKey]uuid.UUID),
		loans:     make(map[uuid.UUID]*domain.Loan),
		tasks:     make(map[uuid.UUID]*domain.EarnTask),
		FailOn:    make(map[string]error),
	}
}

// WithinTx implements domain.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&storeTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshotState struct {
	users        map[uuid.UUID]*domain.User
	wallets      map[uuid.UUID]*domain.Wallet
	walletIdx    map[walletKey]uuid.UUID
	loans        map[uuid.UUID]*domain.Loan
	tasks        map[uuid.UUID]*domain.EarnTask
	transactions []*domain.Transaction
	commissions  []*domain.CommissionEvent
}

func (s *Store) snapshot() snapshotState {
	snap := snapshotState{
		users:        make(map[uuid.UUID]*domain.User, len(s.users)),
		wallets:      make(map[uuid.UUID]*domain.Wallet, len(s.wallets)),
		walletIdx:    make(map[walletKey]uuid.UUID, len(s.walletIdx)),
		loans:        make(map[uuid.UUID]*domain.Loan, len(s.loans)),
		tasks:        make(map[uuid.UUID]*domain.EarnTask, len(s.tasks)),
		transactions: append([]*domain.Transaction(nil), s.transactions...),
		commissions:  append([]*domain.CommissionEvent(nil), s.commissions...),
	}
	for id, u := range s.users {
		cp := *u
		snap.users[id] = &cp
	}
	for id, w := range s.wallets {
		cp := *w
		snap.wallets[id] = &cp
	}
	for k, v := range s.walletIdx {
		snap.walletIdx[k] = v
	}
	for id, l := range s.loans {
		cp := *l
		snap.loans[id] = &cp
	}
	for id, t := range s.tasks {
		cp := *t
		snap.tasks[id] = &cp
	}
	return snap
}

func (s *Store) restore(snap snapshotState) {
	s.users = snap.users
	s.wallets = snap.wallets
	s.walletIdx = snap.walletIdx
	s.loans = snap.loans
	s.tasks = snap.tasks
	s.transactions = snap.transactions
	s.commissions = snap.commissions
}

// checkError returns and clears any injected error for the given method.
func (s *Store) checkError(method string) error {
	if s.ErrorOnNextCall != nil {
		err := s.ErrorOnNextCall
		s.ErrorOnNextCall = nil
		return err
	}
	if err, ok := s.FailOn[method]; ok {
		return err
	}
	return nil
}

// storeTx implements domain.Tx against the store's maps. The store mutex is
// held for the duration of the enclosing WithinTx call.
type storeTx struct {
	s *Store
}

func (t *storeTx) WalletForUpdate(ctx context.Context, ownerID uuid.UUID, kind domain.WalletKind) (*domain.Wallet, error) {
	if err := t.s.checkError("WalletForUpdate"); err != nil {
		return nil, err
	}

	key := walletKey{owner: ownerID, kind: kind}
	if id, ok := t.s.walletIdx[key]; ok {
		return t.s.wallets[id], nil
	}

	w := &domain.Wallet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Kind:      kind,
		Balance:   decimal.Zero,
		Frozen:    decimal.Zero,
		UpdatedAt: time.Now(),
	}
	t.s.wallets[w.ID] = w
	t.s.walletIdx[key] = w.ID
	return w, nil
}

func (t *storeTx) UpdateWallet(ctx context.Context, w *domain.Wallet) error {
	if err := t.s.checkError("UpdateWallet"); err != nil {
		return err
	}
	stored, ok := t.s.wallets[w.ID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	stored.Balance = w.Balance
	stored.Frozen = w.Frozen
	stored.UpdatedAt = time.Now()
	return nil
}

func (t *storeTx) SetWalletYieldDate(ctx context.Context, walletID uuid.UUID, day time.Time) error {
	if err := t.s.checkError("SetWalletYieldDate"); err != nil {
		return err
	}
	stored, ok := t.s.wallets[walletID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	d := day
	stored.LastYieldOn = &d
	return nil
}

func (t *storeTx) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	if err := t.s.checkError("AppendTransaction"); err != nil {
		return err
	}
	cp := *tx
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	t.s.transactions = append(t.s.transactions, &cp)
	return nil
}

func (t *storeTx) CreateLoan(ctx context.Context, l *domain.Loan) error {
	if err := t.s.checkError("CreateLoan"); err != nil {
		return err
	}
	cp := *l
	t.s.loans[l.ID] = &cp
	return nil
}

func (t *storeTx) LoanForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	if err := t.s.checkError("LoanForUpdate"); err != nil {
		return nil, err
	}
	l, ok := t.s.loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	return l, nil
}

// ClaimLoan behaves like LoanForUpdate here: the store mutex already
// serializes units of work, so a claimed row can never be observed locked.
func (t *storeTx) ClaimLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	if err := t.s.checkError("ClaimLoan"); err != nil {
		return nil, err
	}
	l, ok := t.s.loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	return l, nil
}

func (t *storeTx) UpdateLoan(ctx context.Context, l *domain.Loan) error {
	if err := t.s.checkError("UpdateLoan"); err != nil {
		return err
	}
	if _, ok := t.s.loans[l.ID]; !ok {
		return domain.ErrLoanNotFound
	}
	cp := *l
	t.s.loans[l.ID] = &cp
	return nil
}

func (t *storeTx) ClaimVaultWallet(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	if err := t.s.checkError("ClaimVaultWallet"); err != nil {
		return nil, err
	}
	w, ok := t.s.wallets[id]
	if !ok || w.Kind != domain.WalletKindVault {
		return nil, domain.ErrWalletNotFound
	}
	return w, nil
}

func (t *storeTx) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := t.s.checkError("GetUser"); err != nil {
		return nil, err
	}
	u, ok := t.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (t *storeTx) EnsureUser(ctx context.Context, u *domain.User) error {
	if err := t.s.checkError("EnsureUser"); err != nil {
		return err
	}
	if _, ok := t.s.users[u.ID]; ok {
		return nil
	}
	cp := *u
	t.s.users[u.ID] = &cp
	return nil
}

func (t *storeTx) UpdateUserTier(ctx context.Context, id uuid.UUID, tier domain.MembershipTier) error {
	if err := t.s.checkError("UpdateUserTier"); err != nil {
		return err
	}
	u, ok := t.s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Tier = tier
	return nil
}

func (t *storeTx) CreateCommissionEvent(ctx context.Context, ev *domain.CommissionEvent) error {
	if err := t.s.checkError("CreateCommissionEvent"); err != nil {
		return err
	}
	cp := *ev
	t.s.commissions = append(t.s.commissions, &cp)
	return nil
}

func (t *storeTx) TaskForUpdate(ctx context.Context, id uuid.UUID) (*domain.EarnTask, error) {
	if err := t.s.checkError("TaskForUpdate"); err != nil {
		return nil, err
	}
	task, ok := t.s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

func (t *storeTx) UpdateTask(ctx context.Context, task *domain.EarnTask) error {
	if err := t.s.checkError("UpdateTask"); err != nil {
		return err
	}
	if _, ok := t.s.tasks[task.ID]; !ok {
		return domain.ErrTaskNotFound
	}
	cp := *task
	t.s.tasks[task.ID] = &cp
	return nil
}

// --- Read repository implementations ---

// ListByOwner implements domain.WalletRepository.
func (s *Store) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Wallet
	for _, w := range s.wallets {
		if w.OwnerID == ownerID {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

// VaultIDsDueForYield implements domain.WalletRepository.
func (s *Store) VaultIDsDueForYield(ctx context.Context, day time.Time, minTier domain.MembershipTier, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dayStart := day.Truncate(24 * time.Hour)
	var out []uuid.UUID
	for _, w := range s.wallets {
		if w.Kind != domain.WalletKindVault {
			continue
		}
		if w.LastYieldOn != nil && !w.LastYieldOn.Truncate(24*time.Hour).Before(dayStart) {
			continue
		}
		owner, ok := s.users[w.OwnerID]
		if !ok || !owner.Tier.AtLeast(minTier) {
			continue
		}
		out = append(out, w.ID)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// TransactionLog returns a read repository over the store's transaction log.
func (s *Store) TransactionLog() domain.TransactionRepository {
	return txLogView{s: s}
}

type txLogView struct {
	s *Store
}

func (v txLogView) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	var out []*domain.Transaction
	for i := len(v.s.transactions) - 1; i >= 0; i-- {
		tx := v.s.transactions[i]
		if tx.OwnerID != ownerID {
			continue
		}
		cp := *tx
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (v txLogView) CountByOwnerAndTypes(ctx context.Context, ownerID uuid.UUID, types []domain.TransactionType, since time.Time) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	wanted := make(map[domain.TransactionType]bool, len(types))
	for _, tt := range types {
		wanted[tt] = true
	}

	count := 0
	for _, tx := range v.s.transactions {
		if tx.OwnerID == ownerID && wanted[tx.Type] && !tx.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// Loans returns a read repository over the store's loans.
func (s *Store) Loans() domain.LoanRepository {
	return loanView{s: s}
}

type loanView struct {
	s *Store
}

func (v loanView) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	l, ok := v.s.loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	cp := *l
	return &cp, nil
}

func (v loanView) ListOpenOffers(ctx context.Context, limit int) ([]*domain.Loan, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	var out []*domain.Loan
	for _, l := range v.s.loans {
		if l.Status == domain.LoanStatusPending && l.BorrowerID == nil {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v loanView) ListOverdueIDs(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	var overdue []*domain.Loan
	for _, l := range v.s.loans {
		if l.Overdue(asOf) {
			overdue = append(overdue, l)
		}
	}
	sort.Slice(overdue, func(i, j int) bool { return overdue[i].DueAt.Before(*overdue[j].DueAt) })

	var out []uuid.UUID
	for _, l := range overdue {
		out = append(out, l.ID)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- Test seeding helpers ---

// AddUser inserts a user.
func (s *Store) AddUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// AddWallet inserts a wallet with the given balance and returns it.
func (s *Store) AddWallet(ownerID uuid.UUID, kind domain.WalletKind, balance decimal.Decimal) *domain.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &domain.Wallet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Kind:      kind,
		Balance:   balance,
		Frozen:    decimal.Zero,
		UpdatedAt: time.Now(),
	}
	s.wallets[w.ID] = w
	s.walletIdx[walletKey{owner: ownerID, kind: kind}] = w.ID
	return w
}

// AddLoan inserts a loan.
func (s *Store) AddLoan(l *domain.Loan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.loans[l.ID] = &cp
}

// AddTask inserts an earning task.
func (s *Store) AddTask(t *domain.EarnTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.ID] = &cp
}

// Balance returns the balance of the (owner, kind) wallet, or zero if the
// wallet does not exist.
func (s *Store) Balance(ownerID uuid.UUID, kind domain.WalletKind) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.walletIdx[walletKey{owner: ownerID, kind: kind}]; ok {
		return s.wallets[id].Balance
	}
	return decimal.Zero
}

// Wallet returns a copy of the (owner, kind) wallet, or nil if missing.
func (s *Store) Wallet(ownerID uuid.UUID, kind domain.WalletKind) *domain.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.walletIdx[walletKey{owner: ownerID, kind: kind}]; ok {
		cp := *s.wallets[id]
		return &cp
	}
	return nil
}

// Loan returns a copy of the loan, or nil if missing.
func (s *Store) Loan(id uuid.UUID) *domain.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.loans[id]; ok {
		cp := *l
		return &cp
	}
	return nil
}

// Task returns a copy of the task, or nil if missing.
func (s *Store) Task(id uuid.UUID) *domain.EarnTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[id]; ok {
		cp := *t
		return &cp
	}
	return nil
}

// User returns a copy of the user, or nil if missing.
func (s *Store) User(id uuid.UUID) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp
	}
	return nil
}

// Transactions returns a copy of the full transaction log, oldest first.
func (s *Store) Transactions() []*domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		cp := *tx
		out = append(out, &cp)
	}
	return out
}

// Commissions returns a copy of all recorded commission events.
func (s *Store) Commissions() []*domain.CommissionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.CommissionEvent, 0, len(s.commissions))
	for _, ev := range s.commissions {
		cp := *ev
		out = append(out, &cp)
	}
	return out
}
