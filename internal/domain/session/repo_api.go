package session

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

func sessionPath(bookingID string) string {
	return "/admin/bookings/" + url.PathEscape(bookingID) + "/session"
}

func (r *apiRepo) Get(ctx context.Context, bookingID string) (*Session, error) {
	var out Session
	err := r.client.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   sessionPath(bookingID),
		Admin:  true,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("get session of booking %s: %w", bookingID, err)
	}
	return &out, nil
}

func (r *apiRepo) Save(ctx context.Context, bookingID string, body SaveBody) (*Session, error) {
	var out Session
	err := r.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   sessionPath(bookingID),
		Body:   body,
		Admin:  true,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("save session of booking %s: %w", bookingID, err)
	}
	return &out, nil
}
