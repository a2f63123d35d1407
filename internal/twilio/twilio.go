package twilio

import (
	"context"
	"errors"
	"fmt"

	_twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

type Client interface {
	SendSms(from, to, msg string) (string, error)
}

type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

func NewClient(accountSid, authToken string) (*ClientImpl, error) {
	if accountSid == "" || authToken == "" {
		return nil, errors.New("account sid and auth token cannot be empty")
	}

	client := _twilio.NewRestClientWithParams(_twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})

	return &ClientImpl{api: client.Api}, nil
}

type ClientImpl struct {
	api messageCreator
}

// SendSms returns the sid of the created message.
func (c ClientImpl) SendSms(from, to, msg string) (string, error) {
	if from == "" || to == "" || msg == "" {
		return "", errors.New("none of the parameters can be empty")
	}

	params := &openapi.CreateMessageParams{}
	params.SetFrom(from)
	params.SetTo(to)
	params.SetBody(msg)

	message, err := c.api.CreateMessage(params)
	if err != nil {
		return "", err
	}

	if message.Sid == nil {
		return "", nil
	}
	return *message.Sid, nil
}

// Notifier texts a one-line run summary. A Notifier without a client does
// nothing.
type Notifier struct {
	Client Client
	From   string
	To     string
	Log    *zap.SugaredLogger
}

func (n Notifier) Enabled() bool {
	return n.Client != nil && n.From != "" && n.To != ""
}

func (n Notifier) Notify(ctx context.Context, msg string) error {
	if !n.Enabled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sid, err := n.Client.SendSms(n.From, n.To, msg)
	if err != nil {
		return fmt.Errorf("an error ocurred when sending notification sms: %w", err)
	}

	if n.Log != nil {
		n.Log.Infow("Sent notification", "sid", sid)
	}
	return nil
}
