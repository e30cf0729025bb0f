package emaillink

import (
	"context"
	"fmt"
	"net/http"

	"github.com/consult/consult/internal/platform/apiclient"
)

type apiRepo struct {
	client *apiclient.Client
}

// NewAPIRepo returns a Repository backed by the upstream admin API.
func NewAPIRepo(client *apiclient.Client) Repository {
	return &apiRepo{client: client}
}

func (r *apiRepo) Create(ctx context.Context, counselorID string, expiresInHours int) (*Issued, error) {
	var out Issued
	err := r.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/admin/email-links",
		Body:   createBody{CounselorID: counselorID, ExpiresInHours: expiresInHours},
		Admin:  true,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("create email link: %w", err)
	}
	return &out, nil
}
