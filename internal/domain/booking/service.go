package booking

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/consult/consult/internal/domain/slot"
	"github.com/consult/consult/internal/platform/querycache"
)

// maxConcurrentFetches bounds the per-slot fan-out of DayRoster.
const maxConcurrentFetches = 4

type Service struct {
	repo   Repository
	slots  *slot.Service
	cache  *querycache.Cache
	logger zerolog.Logger
}

func NewService(repo Repository, slots *slot.Service, cache *querycache.Cache, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		slots:  slots,
		cache:  cache,
		logger: logger.With().Str("component", "booking").Logger(),
	}
}

// ListBySlot returns the cached bookings of a slot.
func (s *Service) ListBySlot(ctx context.Context, slotID string) ([]Booking, error) {
	return querycache.Fetch(ctx, s.cache, slot.BookingsKey(slotID), func(ctx context.Context) ([]Booking, error) {
		return s.repo.ListBySlot(ctx, slotID)
	})
}

// Views returns the display rows of the bookings of a slot.
func (s *Service) Views(ctx context.Context, slotID string) ([]View, error) {
	bookings, err := s.ListBySlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(bookings))
	for _, b := range bookings {
		views = append(views, NewView(b))
	}
	return views, nil
}

// DayRoster returns every slot of date with its bookings. The bookings of
// the slots are fetched concurrently; the result keeps the slot order.
func (s *Service) DayRoster(ctx context.Context, date string) ([]SlotBookings, error) {
	roster, err := s.slots.Roster(ctx, date)
	if err != nil {
		return nil, err
	}

	out := make([]SlotBookings, len(roster))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, a := range roster {
		out[i].Slot = a
		g.Go(func() error {
			views, err := s.Views(gctx, a.ID)
			if err != nil {
				return err
			}
			out[i].Bookings = views
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.logger.Debug().Str("date", date).Int("slots", len(out)).Msg("day roster loaded")
	return out, nil
}
