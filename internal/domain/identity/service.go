package identity

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/consult/consult/internal/platform/auth"
	"github.com/consult/consult/internal/platform/validation"
)

// Service signs admins in and out. The upstream API is the only authority
// on credentials; the user shown in the app is read from the token claims
// when the token has any, and is otherwise the submitted email.
type Service struct {
	repo     Repository
	registry *auth.Registry
	logger   zerolog.Logger
}

func NewService(repo Repository, registry *auth.Registry, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		logger:   logger.With().Str("component", "identity").Logger(),
	}
}

// Login validates the form, exchanges it upstream and starts a session.
func (s *Service) Login(ctx context.Context, form LoginForm) (*Session, error) {
	form.Email = strings.TrimSpace(form.Email)
	if err := validation.Struct(form); err != nil {
		return nil, err
	}

	token, err := s.repo.Login(ctx, form.Email, form.Password)
	if err != nil {
		s.logger.Info().Err(err).Str("email", form.Email).Msg("login rejected")
		return nil, err
	}

	// The token is opaque to this app; claims only decorate the session.
	user, exp, err := auth.UserFromToken(token)
	if err != nil {
		s.logger.Debug().Err(err).Msg("access token carries no readable claims")
		user, exp = auth.User{}, time.Time{}
	}
	if user.Email == "" {
		user.Email = form.Email
	}

	id, store, err := s.registry.Create(ctx, token, user, exp)
	if err != nil {
		return nil, err
	}
	return &Session{ID: id, User: user, ExpiresAt: store.ExpiresAt()}, nil
}

// Logout ends the session with id.
func (s *Service) Logout(id string) {
	if id == "" {
		return
	}
	s.registry.End(id, "logout")
}
