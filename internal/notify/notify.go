// Package notify delivers admin alerts and user SMS.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Alert kinds.
const (
	KindVerificationSubmitted = "verification_submitted"
	KindPhotosBroken          = "photos_broken"
	KindImpersonation         = "impersonation"
)

// Alert is a message for the back-office team.
type Alert struct {
	Kind    string            `json:"kind"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Link    string            `json:"link,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Text renders the alert as plain text for chat and SMS channels.
func (a Alert) Text() string {
	var b strings.Builder
	b.WriteString(a.Title)
	if a.Body != "" {
		b.WriteString("\n")
		b.WriteString(a.Body)
	}
	if a.Link != "" {
		b.WriteString("\n")
		b.WriteString(a.Link)
	}
	return b.String()
}

// Notifier delivers admin alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Multi fans an alert out to every channel and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, a Alert) error {
	var errList []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// BestEffort sends an alert and only logs a failure.
func BestEffort(ctx context.Context, n Notifier, log *zap.Logger, a Alert) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, a); err != nil {
		log.Warn("admin notification failed", zap.String("kind", a.Kind), zap.Error(err))
	}
}

// Invoker calls a backend edge function.
type Invoker interface {
	Invoke(ctx context.Context, name string, in, out any) error
}

// Function forwards alerts to the backend's admin notification function.
type Function struct {
	inv  Invoker
	name string
}

// NewFunction creates a notifier calling the named edge function.
func NewFunction(inv Invoker, name string) *Function { return &Function{inv: inv, name: name} }

// Notify implements Notifier.
func (f *Function) Notify(ctx context.Context, a Alert) error {
	if err := f.inv.Invoke(ctx, f.name, a, nil); err != nil {
		return fmt.Errorf("notify function: %w", err)
	}
	return nil
}

// SMSAlerts texts alerts to a fixed list of admin numbers.
type SMSAlerts struct {
	sms     SMSSender
	numbers []string
}

// NewSMSAlerts creates an SMS alert channel.
func NewSMSAlerts(sms SMSSender, numbers []string) *SMSAlerts {
	return &SMSAlerts{sms: sms, numbers: numbers}
}

// Notify implements Notifier.
func (s *SMSAlerts) Notify(ctx context.Context, a Alert) error {
	var errList []error
	for _, n := range s.numbers {
		if err := s.sms.SendSMS(ctx, n, a.Text()); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}
