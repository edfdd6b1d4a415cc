package port

import "context"

type StockLocker interface {
	// Lock takes exclusive scopes over the products in ascending id order and
	// blocks until all are held or ctx is done. The returned release is idempotent.
	Lock(ctx context.Context, productIDs []string) (release func(), err error)
}

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key whose request was rejected
	ReleaseIdempotency(ctx context.Context, key string) error
}

type CacheRepository interface {
	StockLocker
	IdempotencyStore
}
