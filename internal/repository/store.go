package repository

import "context"

type Repositories struct {
	Users        UserRepository
	Jobs         JobRepository
	Bids         BidRepository
	Transactions TransactionRepository
}

// Store groups the repositories of a job aggregate behind one transactional boundary.
type Store interface {
	// Repos returns repositories that run each call on its own.
	Repos() Repositories
	// WithinTx runs fn with repositories bound to one transaction. It commits when fn returns nil
	// and rolls back every write otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
}
