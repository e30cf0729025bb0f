package emaillink

import "context"

type Repository interface {
	Create(ctx context.Context, counselorID string, expiresInHours int) (*Issued, error)
}
