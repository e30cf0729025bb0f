package slot

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/consult/consult/internal/platform/querycache"
	"github.com/consult/consult/pkg/kst"
)

// ErrNotConfirmed is returned by Delete when the caller has not confirmed
// the deletion. No upstream call is made in that case.
var ErrNotConfirmed = errors.New("slot deletion was not confirmed")

// ListKey is the query key of the slot list.
var ListKey = querycache.Key{"slots"}

// BookingsKey is the query key of the bookings of one slot.
func BookingsKey(slotID string) querycache.Key {
	return querycache.Key{"bookings", slotID}
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
		logger: logger.With().Str("component", "slot").Logger(),
	}
}

// All returns the cached slot list, fetching it when absent.
func (s *Service) All(ctx context.Context) ([]Slot, error) {
	return querycache.Fetch(ctx, s.cache, ListKey, func(ctx context.Context) ([]Slot, error) {
		slots, err := s.repo.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, sl := range slots {
			if err := kst.CheckOffset(sl.StartAt); err != nil {
				s.logger.Warn().Err(err).Str("slot_id", sl.ID).Msg("slot timestamp decoded positionally")
			}
		}
		return slots, nil
	})
}

// Get returns one slot from the cached list.
func (s *Service) Get(ctx context.Context, id string) (Slot, bool, error) {
	slots, err := s.All(ctx)
	if err != nil {
		return Slot{}, false, err
	}
	sl, ok := Find(slots, id)
	return sl, ok, nil
}

// ForDate returns the slots starting on date.
func (s *Service) ForDate(ctx context.Context, date string) ([]Slot, error) {
	slots, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return FilterByDate(slots, date), nil
}

// Roster returns the availability view of the slots on date.
func (s *Service) Roster(ctx context.Context, date string) ([]Availability, error) {
	slots, err := s.ForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	return Annotate(slots), nil
}

// Create adds a slot starting at startAt. An empty status means OPEN.
func (s *Service) Create(ctx context.Context, startAt, status string) (*Slot, error) {
	if status == "" {
		status = StatusOpen
	}
	created, err := s.repo.Create(ctx, startAt, status)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.logger.Info().Str("start_at", startAt).Msg("slot created")
	return created, nil
}

// Update changes the start and/or status of a slot.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Slot, error) {
	updated, err := s.repo.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.logger.Info().Str("slot_id", id).Msg("slot updated")
	return updated, nil
}

// Delete removes a slot. confirmed must carry the admin's explicit
// confirmation.
func (s *Service) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.cache.Invalidate(ctx, BookingsKey(id))
	s.logger.Info().Str("slot_id", id).Msg("slot deleted")
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	n := s.cache.Invalidate(ctx, ListKey)
	s.logger.Debug().Int("dropped", n).Msg("slot list invalidated")
}
