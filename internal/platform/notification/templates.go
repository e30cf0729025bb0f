package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Built-in template ids.
const (
	TemplateReservationLink = "reservation-link"
	TemplateBookingReceived = "booking-received"
)

// Template is a subject and body with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

var builtInTemplates = []Template{
	{
		ID:      TemplateReservationLink,
		Subject: "상담 예약 링크 안내",
		Body: "안녕하세요{{name_suffix}}. 아래 링크에서 상담 시간을 예약해 주세요.\n\n" +
			"{{link}}\n\n링크 만료: {{expires_at}}",
	},
	{
		ID:      TemplateBookingReceived,
		Subject: "상담 예약이 완료되었습니다",
		Body: "{{name}}님, 상담 예약이 완료되었습니다.\n\n" +
			"예약 번호: {{booking_id}}\n예약 일시: {{slot_date}} {{slot_time}}",
	},
}

// TemplateEngine holds the templates a Manager can render.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine returns an engine loaded with the built-in templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template, len(builtInTemplates))}
	for _, t := range builtInTemplates {
		e.templates[t.ID] = t
	}
	return e
}

// RegisterTemplate adds t, replacing any template with the same id.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	e.templates[t.ID] = t
	e.mu.Unlock()
}

// Render fills the placeholders of template id from data. Placeholders
// without a value stay in the output.
func (e *TemplateEngine) Render(id string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", id)
	}

	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}
