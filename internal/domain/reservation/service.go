package reservation

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/consult/consult/internal/platform/notification"
	"github.com/consult/consult/internal/platform/querycache"
)

// VerifyKey is the query key of a verify result.
func VerifyKey(token, date string) querycache.Key {
	return querycache.Key{"public-reserve", token, date}
}

func tokenKey(token string) querycache.Key {
	return querycache.Key{"public-reserve", token}
}

// Service backs the booking app. It caches verify results per token and
// date, allows one booking submission per token at a time across requests,
// and drops the cached results of a token once a booking was attempted.
type Service struct {
	repo   Repository
	cache  *querycache.Cache
	mailer *notification.Manager
	logger zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewService creates the service. mailer may be nil, in which case no
// booking receipt is mailed.
func NewService(repo Repository, cache *querycache.Cache, mailer *notification.Manager, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		mailer:   mailer,
		logger:   logger.With().Str("component", "reservation").Logger(),
		inflight: make(map[string]struct{}),
	}
}

// Verify returns the cached verify result for token and date.
func (s *Service) Verify(ctx context.Context, token, date string) (*Verification, error) {
	return querycache.Fetch(ctx, s.cache, VerifyKey(token, date), func(ctx context.Context) (*Verification, error) {
		return s.repo.Verify(ctx, token, date)
	})
}

// Book submits a booking. A second submission for the same token while
// one is running fails with ErrSubmitInFlight.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Booked, error) {
	if !s.acquire(req.Token) {
		return nil, ErrSubmitInFlight
	}
	defer s.release(req.Token)

	res, err := s.repo.Book(ctx, req)

	// Seat counts changed or the token may be used up either way.
	n := s.cache.Invalidate(ctx, tokenKey(req.Token))
	s.logger.Debug().Int("dropped", n).Msg("verify results invalidated")

	if err != nil {
		s.logger.Info().Err(err).Str("slot_id", req.SlotID).Msg("booking rejected")
		return nil, err
	}
	s.logger.Info().Str("slot_id", req.SlotID).Str("booking_id", res.BookingID).Msg("booking created")
	return res, nil
}

// NotifyBooked mails the booking receipt to the applicant. Failures are
// logged only.
func (s *Service) NotifyBooked(ctx context.Context, a Applicant, c Confirmation) {
	if s.mailer == nil || a.Email == "" {
		return
	}
	_, err := s.mailer.SendFromTemplate(ctx, notification.TemplateBookingReceived, map[string]string{
		"name":       a.Name,
		"booking_id": c.BookingID,
		"slot_date":  c.SlotDate,
		"slot_time":  c.SlotTime,
	}, a.Email)
	if err != nil {
		s.logger.Warn().Err(err).Str("booking_id", c.BookingID).Msg("booking receipt mail failed")
	}
}

func (s *Service) acquire(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[token]; busy {
		return false
	}
	s.inflight[token] = struct{}{}
	return true
}

func (s *Service) release(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, token)
}
