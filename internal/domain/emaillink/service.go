package emaillink

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/consult/consult/internal/platform/apperr"
	"github.com/consult/consult/internal/platform/notification"
	"github.com/consult/consult/internal/platform/validation"
	"github.com/consult/consult/pkg/kst"
)

type Service struct {
	repo         Repository
	publicBase   string
	defaultHours int
	mailer       *notification.Manager
	logger       zerolog.Logger
}

// NewService creates the link service. publicBase is the public booking
// app URL used when the upstream only returns a token. mailer may be nil,
// in which case recipients are ignored.
func NewService(repo Repository, publicBase string, defaultHours int, mailer *notification.Manager, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		publicBase:   publicBase,
		defaultHours: defaultHours,
		mailer:       mailer,
		logger:       logger.With().Str("component", "emaillink").Logger(),
	}
}

// Create issues a reservation link and mails it when a recipient is given.
// A failed mail does not fail the link; its status is reported instead.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Link, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	hours := in.ExpiresInHours
	if hours == 0 {
		hours = s.defaultHours
	}

	issued, err := s.repo.Create(ctx, in.CounselorID, hours)
	if err != nil {
		return nil, err
	}
	link := &Link{
		Token:     issued.Token,
		URL:       issued.ResolveURL(s.publicBase),
		ExpiresAt: issued.ExpiresAt,
	}
	if link.URL == "" {
		return nil, &apperr.RequestRejected{Status: http.StatusBadGateway, Message: "링크를 생성하지 못했습니다"}
	}
	s.logger.Info().Str("counselor_id", in.CounselorID).Int("expires_in_hours", hours).Msg("reservation link issued")

	if in.Recipient != "" && s.mailer != nil {
		link.Mail = s.send(ctx, in, link)
	}
	return link, nil
}

func (s *Service) send(ctx context.Context, in CreateInput, link *Link) *MailStatus {
	suffix := ""
	if in.RecipientName != "" {
		suffix = " " + in.RecipientName + "님"
	}
	expires := "-"
	if link.ExpiresAt != "" {
		expires = kst.FormatString(link.ExpiresAt, kst.LayoutDateTime)
	}

	st := &MailStatus{Recipient: in.Recipient}
	n, err := s.mailer.SendFromTemplate(ctx, notification.TemplateReservationLink, map[string]string{
		"name_suffix": suffix,
		"link":        link.URL,
		"expires_at":  expires,
	}, in.Recipient)
	if n != nil {
		st.NotificationID = n.ID
		st.Status = n.Status
	}
	if err != nil {
		st.Status = notification.StatusFailed
		st.Error = err.Error()
		s.logger.Warn().Err(err).Str("recipient", in.Recipient).Msg("reservation link mail failed")
	}
	return st
}
