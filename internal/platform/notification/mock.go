package notification

import (
	"context"
	"errors"
	"sync"
)

// EmailCall is one message captured by MockEmailSender.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender records messages instead of sending them. Set ShouldFail
// to make every send return FailError.
type MockEmailSender struct {
	ShouldFail bool
	FailError  string

	mu    sync.Mutex
	calls []EmailCall
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns the captured messages in send order.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmailCall(nil), m.calls...)
}
