package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/config"
)

// Fetcher opens one IMAP session per call and returns the messages
// received within the look-back window. Fetches are read-only: bodies are
// requested with BODY.PEEK so the \Seen flag is never set and human use of
// the mailbox is undisturbed.
type Fetcher struct {
	host        string
	port        int
	dialTimeout time.Duration
	window      time.Duration
	logger      *zap.Logger
}

func NewFetcher(cfg config.IMAPConfig, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		host:        cfg.Host,
		port:        cfg.Port,
		dialTimeout: cfg.DialTimeout(),
		window:      cfg.Window(),
		logger:      logger,
	}
}

// FetchRecent connects as the given account, selects INBOX and returns the
// normalized messages from the window. A connection or authentication
// failure is returned to the caller; the orchestrator treats it as "no
// messages from this account" and moves on.
func (f *Fetcher) FetchRecent(ctx context.Context, account, appCode string) ([]model.InboundMessage, error) {
	addr := net.JoinHostPort(f.host, strconv.Itoa(f.port))

	dialer := &net.Dialer{Timeout: f.dialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	client := imapclient.New(conn, nil)
	defer func() { _ = client.Logout().Wait() }()

	if err := client.Login(account, appCode).Wait(); err != nil {
		return nil, fmt.Errorf("authentication failed for %s: %w", account, err)
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	since := time.Now().Add(-f.window)
	criteria := &imap.SearchCriteria{
		Since: since,
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	uidSet := imap.UIDSetNum(uids...)

	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)

	var messages []model.InboundMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		m, ok := Normalize(account, buf.Envelope, buf.FindBodySection(bodySection))
		if !ok {
			// Without a Message-ID the message cannot be deduplicated
			// or safely reprocessed, so it is dropped.
			f.logger.Warn("Dropping message without Message-ID",
				zap.String("account", account),
				zap.Uint32("uid", uint32(buf.UID)),
			)
			continue
		}

		messages = append(messages, m)
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching messages: %w", err)
	}

	return messages, nil
}
