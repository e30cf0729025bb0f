package booking

import "context"

type Repository interface {
	ListBySlot(ctx context.Context, slotID string) ([]Booking, error)
}
