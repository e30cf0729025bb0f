package session

import "context"

// Repository is the upstream session store. Get returns an error matching
// apperr.ErrNotFound when no session is recorded.
type Repository interface {
	Get(ctx context.Context, bookingID string) (*Session, error)
	Save(ctx context.Context, bookingID string, body SaveBody) (*Session, error)
}
