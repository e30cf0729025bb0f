package identity

import (
	"time"

	"github.com/consult/consult/internal/platform/auth"
)

// LoginForm is the admin sign-in form.
type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (LoginForm) ValidationMessages() map[string]string {
	return map[string]string{
		"email":    "이메일 형식이 올바르지 않습니다",
		"password": "비밀번호를 입력하세요",
	}
}

// loginResponse is the upstream answer to a successful sign-in.
type loginResponse struct {
	AccessToken string `json:"access_token"`
}

// Session is a signed-in admin session.
type Session struct {
	ID        string    `json:"-"`
	User      auth.User `json:"user"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}
