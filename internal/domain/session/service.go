package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/consult/consult/internal/platform/apperr"
	"github.com/consult/consult/internal/platform/querycache"
	"github.com/consult/consult/internal/platform/validation"
)

// ErrSessionExists is returned by Save once a session is recorded.
var ErrSessionExists = errors.New("session already recorded")

// Key is the query key of the session of a booking.
func Key(bookingID string) querycache.Key {
	return querycache.Key{"session", bookingID}
}

type Service struct {
	repo   Repository
	cache  *querycache.Cache
	logger zerolog.Logger
}

func NewService(repo Repository, cache *querycache.Cache, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// Get returns the recorder view of a booking. An absent session is a
// NoSession view, cached like any other result.
func (s *Service) Get(ctx context.Context, bookingID string) (View, error) {
	return querycache.Fetch(ctx, s.cache, Key(bookingID), func(ctx context.Context) (View, error) {
		sess, err := s.repo.Get(ctx, bookingID)
		if apperr.IsNotFound(err) {
			return newView(bookingID, nil), nil
		}
		if err != nil {
			return View{}, err
		}
		return newView(bookingID, sess), nil
	})
}

// Save records the session of a booking. It is only allowed while the
// booking has no session; afterwards the record is read-only.
func (s *Service) Save(ctx context.Context, bookingID string, in SaveInput) (View, error) {
	if err := validation.Struct(in); err != nil {
		return View{}, err
	}

	current, err := s.Get(ctx, bookingID)
	if err != nil {
		return View{}, err
	}
	if current.State == StateHasSession {
		return current, ErrSessionExists
	}

	if _, err := s.repo.Save(ctx, bookingID, NewSaveBody(in)); err != nil {
		var rej *apperr.RequestRejected
		if errors.As(err, &rej) && rej.Status == http.StatusConflict {
			// Recorded elsewhere since our read.
			s.cache.Invalidate(ctx, Key(bookingID))
		}
		return current, err
	}

	s.cache.Invalidate(ctx, Key(bookingID))
	s.logger.Info().Str("booking_id", bookingID).Msg("session recorded")
	return s.Get(ctx, bookingID)
}
