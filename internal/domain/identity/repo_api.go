package identity

import (
	"context"
	"fmt"
	"net/http"

	"github.com/consult/consult/internal/platform/apiclient"
	"github.com/consult/consult/internal/platform/apperr"
)

type apiRepo struct {
	client *apiclient.Client
}

// NewAPIRepo returns a Repository backed by the upstream auth API.
func NewAPIRepo(client *apiclient.Client) Repository {
	return &apiRepo{client: client}
}

func (r *apiRepo) Login(ctx context.Context, email, password string) (string, error) {
	var out loginResponse
	err := r.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   LoginForm{Email: email, Password: password},
	}, &out)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if out.AccessToken == "" {
		return "", &apperr.TransportFailure{Status: http.StatusOK, Err: fmt.Errorf("login response carried no access token")}
	}
	return out.AccessToken, nil
}
