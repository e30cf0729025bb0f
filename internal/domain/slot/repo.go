package slot

import "context"

// Repository is the upstream slot collection.
type Repository interface {
	List(ctx context.Context) ([]Slot, error)
	Create(ctx context.Context, startAt, status string) (*Slot, error)
	Update(ctx context.Context, id string, p Patch) (*Slot, error)
	Delete(ctx context.Context, id string) error
}
