// Package memory keeps the job aggregate in process memory. WithinTx serializes callers and
// restores a snapshot when the callback fails, which gives the same all-or-nothing behaviour as
// the Postgres store for single-node setups and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/models"
	"github.com/honeynil/JobEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
)

type state struct {
	users        map[uuid.UUID]models.User
	jobs         map[uuid.UUID]models.Job
	bids         map[uuid.UUID]models.Bid
	transactions []models.Transaction
}

func (s *state) clone() *state {
	c := &state{
		users:        make(map[uuid.UUID]models.User, len(s.users)),
		jobs:         make(map[uuid.UUID]models.Job, len(s.jobs)),
		bids:         make(map[uuid.UUID]models.Bid, len(s.bids)),
		transactions: append([]models.Transaction(nil), s.transactions...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.jobs {
		c.jobs[k] = v
	}
	for k, v := range s.bids {
		c.bids[k] = v
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	data  *state
	clock func() time.Time
}

func NewStore() *Store {
	return &Store{
		data: &state{
			users: make(map[uuid.UUID]models.User),
			jobs:  make(map[uuid.UUID]models.Job),
			bids:  make(map[uuid.UUID]models.Bid),
		},
		clock: time.Now,
	}
}

func (s *Store) Repos() repository.Repositories {
	return s.repos(true)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r repository.Repositories) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, s.repos(false))
}

func (s *Store) repos(locking bool) repository.Repositories {
	b := base{store: s, locking: locking}
	return repository.Repositories{
		Users:        &userRepo{b},
		Jobs:         &jobRepo{b},
		Bids:         &bidRepo{b},
		Transactions: &transactionRepo{b},
	}
}

type base struct {
	store   *Store
	locking bool
}

// acquire locks the store for calls made outside WithinTx; inside it the lock is already held.
func (b base) acquire() func() {
	if !b.locking {
		return func() {}
	}
	b.store.mu.Lock()
	return b.store.mu.Unlock
}

func (b base) data() *state {
	return b.store.data
}

type userRepo struct{ base }

func (r *userRepo) Create(_ context.Context, user *models.User) error {
	defer r.acquire()()
	if user == nil {
		return pkgerrors.ErrNilUser
	}
	if !user.Role.Valid() {
		return pkgerrors.ErrInvalidRole
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if _, ok := r.data().users[user.ID]; ok {
		return pkgerrors.ErrDuplicateUser
	}
	user.CreatedAt = r.store.clock()
	r.data().users[user.ID] = *user
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	defer r.acquire()()
	u, ok := r.data().users[id]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	return &u, nil
}

func (r *userRepo) ChangeBalance(_ context.Context, userID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	defer r.acquire()()
	u, ok := r.data().users[userID]
	if !ok {
		return decimal.Zero, pkgerrors.ErrUserNotFound
	}
	next := u.WalletBalance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, pkgerrors.NewInsufficientFunds(delta.Neg(), u.WalletBalance)
	}
	u.WalletBalance = next
	r.data().users[userID] = u
	return next, nil
}

func (r *userRepo) GetBalance(_ context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	defer r.acquire()()
	u, ok := r.data().users[userID]
	if !ok {
		return decimal.Zero, pkgerrors.ErrUserNotFound
	}
	return u.WalletBalance, nil
}

type jobRepo struct{ base }

func (r *jobRepo) Create(_ context.Context, job *models.Job) error {
	defer r.acquire()()
	if job == nil {
		return pkgerrors.ErrNilJob
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.JobStatusOpen
	}
	now := r.store.clock()
	job.Version = 1
	job.CreatedAt, job.UpdatedAt = now, now
	r.data().jobs[job.ID] = *job
	return nil
}

func (r *jobRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	defer r.acquire()()
	j, ok := r.data().jobs[id]
	if !ok {
		return nil, pkgerrors.ErrJobNotFound
	}
	return copyJob(j), nil
}

// GetForUpdate needs no row lock: WithinTx already excludes every other writer.
func (r *jobRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return r.GetByID(ctx, id)
}

func (r *jobRepo) Update(_ context.Context, job *models.Job) error {
	defer r.acquire()()
	if job == nil {
		return pkgerrors.ErrNilJob
	}
	stored, ok := r.data().jobs[job.ID]
	if !ok {
		return pkgerrors.ErrJobNotFound
	}
	if stored.Version != job.Version {
		return pkgerrors.ErrStaleJob
	}
	stored.Status = job.Status
	stored.AmountPaid = job.AmountPaid
	stored.WorkSubmission = nil
	if job.WorkSubmission != nil {
		ws := *job.WorkSubmission
		stored.WorkSubmission = &ws
	}
	stored.Version++
	stored.UpdatedAt = r.store.clock()
	r.data().jobs[job.ID] = stored

	job.Version = stored.Version
	job.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *jobRepo) List(_ context.Context, filter repository.JobFilter) ([]models.Job, error) {
	defer r.acquire()()
	jobs := make([]models.Job, 0)
	for _, j := range r.data().jobs {
		if filter.ClientID != nil && j.ClientID != *filter.ClientID {
			continue
		}
		if filter.Category != "" && j.Category != filter.Category {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, j.Status) {
			continue
		}
		jobs = append(jobs, *copyJob(j))
	}
	sort.SliceStable(jobs, func(a, b int) bool { return jobs[a].CreatedAt.After(jobs[b].CreatedAt) })
	return jobs, nil
}

func containsStatus(list []models.JobStatus, s models.JobStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func copyJob(j models.Job) *models.Job {
	if j.WorkSubmission != nil {
		ws := *j.WorkSubmission
		j.WorkSubmission = &ws
	}
	return &j
}

type bidRepo struct{ base }

func (r *bidRepo) Create(_ context.Context, bid *models.Bid) error {
	defer r.acquire()()
	if bid == nil {
		return pkgerrors.ErrNilBid
	}
	for _, b := range r.data().bids {
		if b.JobID == bid.JobID && b.ProviderID == bid.ProviderID {
			return pkgerrors.ErrDuplicateBid
		}
	}
	if bid.ID == uuid.Nil {
		bid.ID = uuid.New()
	}
	if bid.Status == "" {
		bid.Status = models.BidStatusPending
	}
	bid.CreatedAt = r.store.clock()
	r.data().bids[bid.ID] = *bid
	return nil
}

func (r *bidRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Bid, error) {
	defer r.acquire()()
	b, ok := r.data().bids[id]
	if !ok {
		return nil, pkgerrors.ErrBidNotFound
	}
	return &b, nil
}

func (r *bidRepo) find(match func(models.Bid) bool) (*models.Bid, error) {
	defer r.acquire()()
	for _, b := range r.data().bids {
		if match(b) {
			return &b, nil
		}
	}
	return nil, pkgerrors.ErrBidNotFound
}

func (r *bidRepo) GetByJobAndProvider(_ context.Context, jobID, providerID uuid.UUID) (*models.Bid, error) {
	return r.find(func(b models.Bid) bool { return b.JobID == jobID && b.ProviderID == providerID })
}

func (r *bidRepo) GetAccepted(_ context.Context, jobID uuid.UUID) (*models.Bid, error) {
	return r.find(func(b models.Bid) bool { return b.JobID == jobID && b.Status == models.BidStatusAccepted })
}

func (r *bidRepo) ListByJob(_ context.Context, jobID uuid.UUID) ([]models.Bid, error) {
	defer r.acquire()()
	bids := make([]models.Bid, 0)
	for _, b := range r.data().bids {
		if b.JobID == jobID {
			bids = append(bids, b)
		}
	}
	sort.SliceStable(bids, func(a, b int) bool {
		if !bids[a].Amount.Equal(bids[b].Amount) {
			return bids[a].Amount.LessThan(bids[b].Amount)
		}
		return bids[a].CreatedAt.Before(bids[b].CreatedAt)
	})
	return bids, nil
}

func (r *bidRepo) Accept(_ context.Context, jobID, bidID uuid.UUID) (int64, error) {
	defer r.acquire()()
	var affected int64
	for id, b := range r.data().bids {
		if b.JobID != jobID || b.Status != models.BidStatusPending {
			continue
		}
		if id == bidID {
			b.Status = models.BidStatusAccepted
		} else {
			b.Status = models.BidStatusRejected
		}
		r.data().bids[id] = b
		affected++
	}
	if affected == 0 {
		return 0, pkgerrors.ErrBidNotPending
	}
	return affected - 1, nil
}

func (r *bidRepo) RejectPending(_ context.Context, jobID uuid.UUID) (int64, error) {
	defer r.acquire()()
	var affected int64
	for id, b := range r.data().bids {
		if b.JobID == jobID && b.Status == models.BidStatusPending {
			b.Status = models.BidStatusRejected
			r.data().bids[id] = b
			affected++
		}
	}
	return affected, nil
}

type transactionRepo struct{ base }

func (r *transactionRepo) Create(_ context.Context, tx *models.Transaction) error {
	defer r.acquire()()
	if tx == nil {
		return pkgerrors.ErrNilTransaction
	}
	if !tx.Type.Valid() {
		return pkgerrors.ErrInvalidTransactionType
	}
	if !tx.Status.Valid() {
		return pkgerrors.ErrInvalidTransactionStatus
	}
	if tx.ExternalRef != "" {
		for _, t := range r.data().transactions {
			if t.ExternalRef == tx.ExternalRef {
				return pkgerrors.ErrDuplicateExternalRef
			}
		}
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	tx.CreatedAt = r.store.clock()
	r.data().transactions = append(r.data().transactions, *tx)
	return nil
}

func (r *transactionRepo) find(match func(models.Transaction) bool) (*models.Transaction, error) {
	defer r.acquire()()
	for _, t := range r.data().transactions {
		if match(t) {
			return &t, nil
		}
	}
	return nil, pkgerrors.ErrTransactionNotFound
}

func (r *transactionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	return r.find(func(t models.Transaction) bool { return t.ID == id })
}

func (r *transactionRepo) GetByExternalRef(_ context.Context, ref string) (*models.Transaction, error) {
	return r.find(func(t models.Transaction) bool { return ref != "" && t.ExternalRef == ref })
}

func (r *transactionRepo) ListByUser(_ context.Context, userID uuid.UUID, filter repository.TransactionFilter) ([]models.Transaction, error) {
	defer r.acquire()()
	filter = filter.Normalize()
	txs := make([]models.Transaction, 0)
	all := r.data().transactions
	for i := len(all) - 1; i >= 0; i-- {
		t := all[i]
		if t.UserID != userID || (filter.Type != "" && t.Type != filter.Type) {
			continue
		}
		txs = append(txs, t)
		if len(txs) == filter.Limit {
			break
		}
	}
	return txs, nil
}

func (r *transactionRepo) ListByJob(_ context.Context, jobID uuid.UUID) ([]models.Transaction, error) {
	defer r.acquire()()
	txs := make([]models.Transaction, 0)
	for _, t := range r.data().transactions {
		if t.RelatedJobID != nil && *t.RelatedJobID == jobID {
			txs = append(txs, t)
		}
	}
	return txs, nil
}
