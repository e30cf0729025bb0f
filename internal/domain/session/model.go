package session

import "strings"

// Outcome is the result of a consultation.
type Outcome string

const (
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeNoShow    Outcome = "NO_SHOW"
	OutcomeCancelled Outcome = "CANCELLED"
	OutcomeFollowUp  Outcome = "FOLLOW_UP"
)

// DefaultOutcome is sent when the admin does not pick one.
const DefaultOutcome = OutcomeCompleted

// Outcomes lists the outcomes in display order.
var Outcomes = []Outcome{OutcomeCompleted, OutcomeNoShow, OutcomeCancelled, OutcomeFollowUp}

func (o Outcome) Valid() bool {
	for _, v := range Outcomes {
		if o == v {
			return true
		}
	}
	return false
}

// Notes is the structured container of the free-text notes.
type Notes map[string]any

// Content returns the free text, or "" when there is none.
func (n Notes) Content() string {
	s, _ := n["content"].(string)
	return s
}

// Session is the single consultation record of a booking.
type Session struct {
	ID        string  `json:"id"`
	BookingID string  `json:"bookingId"`
	Notes     Notes   `json:"notes"`
	Outcome   Outcome `json:"outcome"`
	StartedAt string  `json:"startedAt,omitempty"`
	EndedAt   string  `json:"endedAt,omitempty"`
}

// State is the recorder state of a booking.
type State string

const (
	StateNoSession  State = "NoSession"
	StateHasSession State = "HasSession"
)

// View is what the session page of a booking shows: the save form while
// nothing is recorded, the read-only record afterwards.
type View struct {
	BookingID string   `json:"bookingId"`
	State     State    `json:"state"`
	Session   *Session `json:"session,omitempty"`
	Content   string   `json:"content,omitempty"`
}

func newView(bookingID string, s *Session) View {
	if s == nil {
		return View{BookingID: bookingID, State: StateNoSession}
	}
	return View{BookingID: bookingID, State: StateHasSession, Session: s, Content: s.Notes.Content()}
}

// SaveInput is the admin form.
type SaveInput struct {
	Notes   string  `json:"notes"`
	Outcome Outcome `json:"outcome" validate:"omitempty,oneof=COMPLETED NO_SHOW CANCELLED FOLLOW_UP"`
}

func (SaveInput) ValidationMessages() map[string]string {
	return map[string]string{"outcome": "결과는 COMPLETED, NO_SHOW, CANCELLED, FOLLOW_UP 중 하나입니다"}
}

// SaveBody is the wire body of a save: notes carry {content} only when
// there is text, and the outcome defaults to COMPLETED.
type SaveBody struct {
	Notes   map[string]string `json:"notes"`
	Outcome Outcome           `json:"outcome"`
}

func NewSaveBody(in SaveInput) SaveBody {
	body := SaveBody{Notes: map[string]string{}, Outcome: in.Outcome}
	if content := strings.TrimSpace(in.Notes); content != "" {
		body.Notes["content"] = content
	}
	if body.Outcome == "" {
		body.Outcome = DefaultOutcome
	}
	return body
}
