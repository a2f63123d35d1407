package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/Philanthropists/newsletter-digest/internal/mail/mime"
	"github.com/Philanthropists/newsletter-digest/internal/mail/types"
)

const (
	user           = "me"
	inboxLabel     = "INBOX"
	msgFormat      = "full"
	concurrentJobs = 10
)

type messagesAPI interface {
	list(ctx context.Context, label string, max int64) ([]string, error)
	get(ctx context.Context, id string) (*gmail.Message, error)
	send(ctx context.Context, raw string) error
}

type serviceAPI struct {
	srv *gmail.Service
}

func (s serviceAPI) list(ctx context.Context, label string, max int64) ([]string, error) {
	res, err := s.srv.Users.Messages.List(user).LabelIds(label).MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(res.Messages))
	for _, msg := range res.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

func (s serviceAPI) get(ctx context.Context, id string) (*gmail.Message, error) {
	return s.srv.Users.Messages.Get(user, id).Format(msgFormat).Context(ctx).Do()
}

func (s serviceAPI) send(ctx context.Context, raw string) error {
	_, err := s.srv.Users.Messages.Send(user, &gmail.Message{Raw: raw}).Context(ctx).Do()
	return err
}

// Service reads the inbox and sends mail through the Gmail API. It is both a
// types.Source and a types.Sender.
type Service struct {
	api   messagesAPI
	label string
	log   *zap.SugaredLogger
}

func New(ctx context.Context, config *oauth2.Config, token *oauth2.Token, log *zap.SugaredLogger) (*Service, error) {
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve gmail client: %w", err)
	}

	return newService(serviceAPI{srv: srv}, log), nil
}

func newService(api messagesAPI, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{api: api, label: inboxLabel, log: log.With("component", "mail.gmail")}
}

// Fetch returns up to limit of the newest inbox messages in the order the API
// lists them. Messages that cannot be retrieved are logged and skipped.
func (s *Service) Fetch(ctx context.Context, limit int) ([]types.RawMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := s.api.list(ctx, s.label, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing %s messages: %w", s.label, err)
	}
	s.log.Infow("Messages", "len", len(ids))

	fetched := make([]*gmail.Message, len(ids))
	in := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < min(concurrentJobs, len(ids)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range in {
				msg, err := s.api.get(ctx, ids[idx])
				if err != nil {
					s.log.Errorw("Error getting message", "error", err, "msgId", ids[idx])
					continue
				}
				fetched[idx] = msg
			}
		}()
	}

	for idx := range ids {
		in <- idx
	}
	close(in)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := make([]types.RawMessage, 0, len(fetched))
	for _, msg := range fetched {
		if msg == nil {
			continue
		}
		messages = append(messages, Convert(msg))
	}

	return messages, nil
}

// Send delivers html to the recipient as a single-part HTML message.
func (s *Service) Send(ctx context.Context, to, subject, html string) error {
	if to == "" {
		return errors.New("no recipient for digest email")
	}

	var buf bytes.Buffer
	err := mime.Compose(&buf, mime.Outgoing{
		To:      to,
		Subject: subject,
		HTML:    html,
		Date:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("composing digest email: %w", err)
	}

	if err := s.api.send(ctx, base64.URLEncoding.EncodeToString(buf.Bytes())); err != nil {
		return fmt.Errorf("sending digest email: %w", err)
	}

	s.log.Infow("Sent email", "to", to, "subject", subject)
	return nil
}
