package booking

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/consult/consult/internal/platform/apiclient"
)

type apiRepo struct {
	client *apiclient.Client
}

// NewAPIRepo returns a Repository backed by the upstream admin API.
func NewAPIRepo(client *apiclient.Client) Repository {
	return &apiRepo{client: client}
}

func (r *apiRepo) ListBySlot(ctx context.Context, slotID string) ([]Booking, error) {
	var out []Booking
	err := r.client.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/admin/slots/" + url.PathEscape(slotID) + "/bookings",
		Admin:  true,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("list bookings of slot %s: %w", slotID, err)
	}
	if out == nil {
		out = []Booking{}
	}
	return out, nil
}
