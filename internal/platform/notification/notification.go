// Package notification mails reservation links and booking receipts to
// applicants and keeps a short log of recent deliveries.
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Delivery statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// defaultLogSize bounds how many deliveries Get can still find.
const defaultLogSize = 512

// Notification is one rendered email and the outcome of its last attempt.
type Notification struct {
	ID         string     `json:"id"`
	Recipient  string     `json:"recipient"`
	Subject    string     `json:"subject"`
	Body       string     `json:"-"`
	TemplateID string     `json:"templateId"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	CreatedAt  time.Time  `json:"createdAt"`
	SentAt     *time.Time `json:"sentAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// EmailSender delivers a single plain-text email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Manager renders templates, hands them to the sender and remembers the
// most recent deliveries so a failed one can be resent.
type Manager struct {
	sender    EmailSender
	templates *TemplateEngine
	logger    zerolog.Logger

	mu    sync.Mutex
	byID  map[string]*Notification
	order []string
	limit int
}

// NewManager builds a Manager. A nil tpl selects the built-in templates.
func NewManager(sender EmailSender, tpl *TemplateEngine, logger zerolog.Logger) *Manager {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Manager{
		sender:    sender,
		templates: tpl,
		logger:    logger.With().Str("component", "mailer").Logger(),
		byID:      make(map[string]*Notification),
		limit:     defaultLogSize,
	}
}

// SendFromTemplate renders templateID with data and mails it to recipient.
// The notification is returned whenever rendering succeeded, so callers can
// report a failed delivery.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", templateID, err)
	}

	n := &Notification{
		ID:         uuid.New().String(),
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
		CreatedAt:  time.Now().UTC(),
	}
	m.remember(n)
	return n, m.deliver(ctx, n)
}

// Get returns a recent notification by id.
func (m *Manager) Get(id string) (*Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.byID[id]
	return n, ok
}

// Retry sends a failed notification again.
func (m *Manager) Retry(ctx context.Context, id string) error {
	n, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("notification %s not found", id)
	}
	m.mu.Lock()
	status := n.Status
	m.mu.Unlock()
	if status != StatusFailed {
		return fmt.Errorf("notification %s is %s, only failed mail can be resent", id, status)
	}
	return m.deliver(ctx, n)
}

func (m *Manager) deliver(ctx context.Context, n *Notification) error {
	err := m.sender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)

	m.mu.Lock()
	n.Attempts++
	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
	} else {
		now := time.Now().UTC()
		n.Status = StatusSent
		n.SentAt = &now
		n.Error = ""
	}
	attempts := n.Attempts
	m.mu.Unlock()

	evt := m.logger.Info()
	if err != nil {
		evt = m.logger.Warn().Err(err)
	}
	evt.Str("notification_id", n.ID).
		Str("template", n.TemplateID).
		Int("attempt", attempts).
		Msg("mail " + n.Status)
	return err
}

// remember stores n, evicting the oldest entry once the log is full.
func (m *Manager) remember(n *Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) >= m.limit {
		delete(m.byID, m.order[0])
		m.order = m.order[1:]
	}
	m.byID[n.ID] = n
	m.order = append(m.order, n.ID)
}
