package identity

import "context"

// Repository exchanges admin credentials for an access token.
type Repository interface {
	Login(ctx context.Context, email, password string) (string, error)
}
