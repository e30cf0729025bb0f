package slot

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

func (r *apiRepo) List(ctx context.Context) ([]Slot, error) {
	var out []Slot
	err := r.client.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/admin/slots",
		Query:  url.Values{"includeBookings": {"true"}},
		Admin:  true,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	if out == nil {
		out = []Slot{}
	}
	return out, nil
}

func (r *apiRepo) Create(ctx context.Context, startAt, status string) (*Slot, error) {
	var resp struct {
		Message string `json:"message"`
		Slot    *Slot  `json:"slot"`
	}
	err := r.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/admin/slots",
		Body:   map[string]string{"startAt": startAt, "status": status},
		Admin:  true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}
	return resp.Slot, nil
}

func (r *apiRepo) Update(ctx context.Context, id string, p Patch) (*Slot, error) {
	var out Slot
	err := r.client.Do(ctx, apiclient.Request{
		Method: http.MethodPatch,
		Path:   "/admin/slots/" + url.PathEscape(id),
		Body:   p,
		Admin:  true,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("update slot %s: %w", id, err)
	}
	return &out, nil
}

func (r *apiRepo) Delete(ctx context.Context, id string) error {
	err := r.client.Do(ctx, apiclient.Request{
		Method: http.MethodDelete,
		Path:   "/admin/slots/" + url.PathEscape(id),
		Admin:  true,
	}, nil)
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", id, err)
	}
	return nil
}
