package reservation

import "context"

// Repository is the public upstream API of reservation links.
type Repository interface {
	Verify(ctx context.Context, token, date string) (*Verification, error)
	Book(ctx context.Context, req BookingRequest) (*Booked, error)
}
