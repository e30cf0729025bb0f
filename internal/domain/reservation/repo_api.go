package reservation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/consult/consult/internal/domain/slot"
	"github.com/consult/consult/internal/platform/apiclient"
	"github.com/consult/consult/internal/platform/apperr"
)

type apiRepo struct {
	client *apiclient.Client
	logger zerolog.Logger
}

// NewAPIRepo returns a Repository backed by the upstream public API.
//
// The canonical verify answer is {counselor, slots} and the canonical
// booking answer is {bookingId, message?}. The legacy {valid, slots,
// message} and {success, bookingId, message} shapes are still read but
// logged; a legacy negative answer is always a failure.
func NewAPIRepo(client *apiclient.Client, logger zerolog.Logger) Repository {
	return &apiRepo{client: client, logger: logger.With().Str("component", "reservation").Logger()}
}

type verifyResponse struct {
	Counselor *struct {
		ID string `json:"id"`
	} `json:"counselor"`
	Slots   []slot.Slot `json:"slots"`
	Valid   *bool       `json:"valid"`
	Message string      `json:"message"`
}

func (r *apiRepo) Verify(ctx context.Context, token, date string) (*Verification, error) {
	q := url.Values{"token": {token}}
	if date != "" {
		q.Set("date", date)
	}
	var raw verifyResponse
	err := r.client.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/public/reserve",
		Query:  q,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("verify reservation token: %w", err)
	}

	if raw.Valid != nil {
		r.logger.Warn().Bool("valid", *raw.Valid).Msg("legacy verify response shape")
		if !*raw.Valid {
			return nil, fmt.Errorf("verify reservation token: %w", &apperr.RequestRejected{Status: http.StatusGone, Message: raw.Message})
		}
	}

	v := &Verification{Slots: raw.Slots}
	if raw.Counselor != nil {
		v.CounselorID = raw.Counselor.ID
	}
	if v.Slots == nil {
		v.Slots = []slot.Slot{}
	}
	return v, nil
}

type bookResponse struct {
	BookingID string `json:"bookingId"`
	Message   string `json:"message"`
	Success   *bool  `json:"success"`
}

func (r *apiRepo) Book(ctx context.Context, req BookingRequest) (*Booked, error) {
	var raw bookResponse
	err := r.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/public/bookings",
		Body:   req,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	if raw.Success != nil {
		r.logger.Warn().Bool("success", *raw.Success).Msg("legacy booking response shape")
		if !*raw.Success {
			return nil, fmt.Errorf("create booking: %w", &apperr.RequestRejected{Status: http.StatusConflict, Message: raw.Message})
		}
	}
	return &Booked{BookingID: raw.BookingID, Message: raw.Message}, nil
}
