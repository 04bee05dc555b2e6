package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// Twilio sends SMS through the Twilio REST API. Without a sender number it only logs.
type Twilio struct {
	create     func(*twilioApi.CreateMessageParams) error
	fromNumber string
	log        *zap.Logger
}

// NewTwilio creates an SMS sender.
func NewTwilio(accountSID, authToken, fromNumber string, log *zap.Logger) *Twilio {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	if log == nil {
		log = zap.NewNop()
	}
	return &Twilio{
		create: func(p *twilioApi.CreateMessageParams) error {
			_, err := client.Api.CreateMessage(p)
			return err
		},
		fromNumber: fromNumber,
		log:        log,
	}
}

// SendSMS implements SMSSender. The Twilio client has no context support; ctx is only checked
// before the call.
func (t *Twilio) SendSMS(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.fromNumber == "" {
		t.log.Info("sms not sent: no sender number configured", zap.String("to", maskPhone(to)))
		return nil
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.fromNumber)
	params.SetBody(body)

	if err := t.create(params); err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}

// maskPhone keeps the last three digits of a number for logs.
func maskPhone(p string) string {
	if len(p) <= 3 {
		return "***"
	}
	return "***" + p[len(p)-3:]
}
