package imap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	_imap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"github.com/Philanthropists/newsletter-digest/internal/mail/mime"
	"github.com/Philanthropists/newsletter-digest/internal/mail/types"
)

const DefaultMailbox = "INBOX"

type Config struct {
	Addr     string
	Username string
	Password string
	Mailbox  string
}

type mailClient interface {
	Login(username, password string) error
	Select(name string, readOnly bool) (*_imap.MailboxStatus, error)
	Fetch(seqset *_imap.SeqSet, items []_imap.FetchItem, ch chan *_imap.Message) error
	Logout() error
}

// Source reads the newest messages of a mailbox over IMAP. Each Fetch opens
// its own connection.
type Source struct {
	cfg  Config
	dial func(addr string) (mailClient, error)
	log  *zap.SugaredLogger
}

func New(cfg Config, log *zap.SugaredLogger) *Source {
	if cfg.Mailbox == "" {
		cfg.Mailbox = DefaultMailbox
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Source{
		cfg: cfg,
		dial: func(addr string) (mailClient, error) {
			return client.DialTLS(addr, nil)
		},
		log: log.With("component", "mail.imap", "mailbox", cfg.Mailbox),
	}
}

// Fetch returns the last limit messages of the mailbox, newest first. The
// mailbox is opened read-only and bodies are fetched with BODY.PEEK, so
// nothing is marked as seen.
func (s *Source) Fetch(ctx context.Context, limit int) ([]types.RawMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	c, err := s.dial(s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", s.cfg.Addr, err)
	}
	// Logging out closes the connection and interrupts a command in flight.
	var logoutOnce sync.Once
	logout := func() {
		logoutOnce.Do(func() {
			if err := c.Logout(); err != nil {
				s.log.Warnw("Error logging out", "error", err)
			}
		})
	}
	defer logout()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			logout()
		case <-stop:
		}
	}()

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("logging in as %s: %w", s.cfg.Username, err)
	}

	boxStatus, err := c.Select(s.cfg.Mailbox, true)
	if err != nil {
		return nil, err
	}
	if !boxStatus.ReadOnly {
		return nil, errors.New("mailbox should be readonly")
	}

	s.log.Infow("Messages", "len", boxStatus.Messages)
	if boxStatus.Messages == 0 {
		return nil, nil
	}

	from := uint32(1)
	if boxStatus.Messages > uint32(limit) {
		from = boxStatus.Messages - uint32(limit) + 1
	}
	seqset := new(_imap.SeqSet)
	seqset.AddRange(from, boxStatus.Messages)

	section := &_imap.BodySectionName{Peek: true}
	items := []_imap.FetchItem{section.FetchItem(), _imap.FetchUid}

	messages := make(chan *_imap.Message, limit)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var fetched []*_imap.Message
	for msg := range messages {
		fetched = append(fetched, msg)
	}

	fetchErr := <-done
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fetchErr
	}

	sort.Slice(fetched, func(i, j int) bool {
		return fetched[i].SeqNum > fetched[j].SeqNum
	})

	raws := make([]types.RawMessage, 0, len(fetched))
	for _, msg := range fetched {
		id := strconv.FormatUint(uint64(msg.Uid), 10)

		body := msg.GetBody(section)
		if body == nil {
			s.log.Errorw("Error getting message body", "msgId", id)
			continue
		}

		raw, err := mime.Parse(id, body)
		if err != nil {
			s.log.Errorw("Error parsing message", "error", err, "msgId", id)
			continue
		}
		raw.ID = id
		raws = append(raws, raw)
	}

	return raws, nil
}
