// Package notify delivers outbound messages through third-party channels
// configured per tenant.
package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/credentials"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
)

// MessageCreator is the Twilio Messages API subset used for SMS.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSMS sends SMS with the tenant's Twilio account.
type TwilioSMS struct {
	creds     credentials.Reader
	newClient func(accountSID, authToken string) MessageCreator
}

func NewTwilioSMS(creds credentials.Reader) *TwilioSMS {
	return &TwilioSMS{
		creds: creds,
		newClient: func(accountSID, authToken string) MessageCreator {
			return twilio.NewRestClientWithParams(twilio.ClientParams{
				Username: accountSID,
				Password: authToken,
			}).Api
		},
	}
}

// Configured reports whether the tenant stored every Twilio key.
func (s *TwilioSMS) Configured(ctx context.Context) bool {
	_, err := credentials.Require(ctx, s.creds, model.KeyTwilioAccountSID, model.KeyTwilioAuthToken, model.KeyTwilioPhoneNumber)
	return err == nil
}

// Send returns the Twilio message SID.
func (s *TwilioSMS) Send(ctx context.Context, to, body string) (string, error) {
	keys, err := credentials.Require(ctx, s.creds, model.KeyTwilioAccountSID, model.KeyTwilioAuthToken, model.KeyTwilioPhoneNumber)
	if err != nil {
		return "", err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(keys[model.KeyTwilioPhoneNumber])
	params.SetBody(body)

	msg, err := s.newClient(keys[model.KeyTwilioAccountSID], keys[model.KeyTwilioAuthToken]).CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("%w: twilio: %v", apperrors.ErrIntegration, err)
	}
	if msg == nil || msg.Sid == nil {
		return "", nil
	}
	return *msg.Sid, nil
}
