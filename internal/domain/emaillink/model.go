package emaillink

import (
	"net/url"
	"strings"
)

// CreateInput is the admin request for a new reservation link. Recipient,
// when set, receives the link by mail.
type CreateInput struct {
	CounselorID    string `json:"counselorId,omitempty"`
	ExpiresInHours int    `json:"expiresInHours,omitempty" validate:"omitempty,min=1,max=720"`
	Recipient      string `json:"recipient,omitempty" validate:"omitempty,email"`
	RecipientName  string `json:"recipientName,omitempty"`
}

func (CreateInput) ValidationMessages() map[string]string {
	return map[string]string{
		"expiresInHours": "만료 시간은 1~720시간입니다",
		"recipient":      "이메일 형식이 올바르지 않습니다",
	}
}

// createBody is the upstream request; unset fields are omitted.
type createBody struct {
	CounselorID    string `json:"counselorId,omitempty"`
	ExpiresInHours int    `json:"expiresInHours,omitempty"`
}

// Issued is the upstream answer. Which of token, link and url are present
// depends on the server version.
type Issued struct {
	Token     string `json:"token,omitempty"`
	Link      string `json:"link,omitempty"`
	URL       string `json:"url,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// ResolveURL picks the link to show: link, then url, then a link built from
// the token on publicBase. It returns "" when none can be derived.
func (i Issued) ResolveURL(publicBase string) string {
	switch {
	case i.Link != "":
		return i.Link
	case i.URL != "":
		return i.URL
	case i.Token != "":
		return strings.TrimRight(publicBase, "/") + "/public/reserve?token=" + url.QueryEscape(i.Token)
	}
	return ""
}

// MailStatus reports the delivery of the link to its recipient.
type MailStatus struct {
	Recipient      string `json:"recipient"`
	NotificationID string `json:"notificationId,omitempty"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}

// Link is an issued reservation link.
type Link struct {
	Token     string      `json:"token,omitempty"`
	URL       string      `json:"url"`
	ExpiresAt string      `json:"expiresAt,omitempty"`
	Mail      *MailStatus `json:"mail,omitempty"`
}
