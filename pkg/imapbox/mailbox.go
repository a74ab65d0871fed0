// Package imapbox is an ingestion mailbox backed by a plain IMAP server, for
// deployments that do not use Microsoft Graph.
package imapbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/docmail/docmail/pkg/config"
	"github.com/docmail/docmail/pkg/document"
	"github.com/docmail/docmail/pkg/system"
)

// Mailbox reads unread messages over IMAP. Every call opens its own
// connection.
type Mailbox struct {
	cfg config.IMAP
	log *zap.SugaredLogger
}

func New(cfg config.IMAP, log *zap.SugaredLogger) *Mailbox {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	return &Mailbox{cfg: cfg, log: log.Named("imap")}
}

func (m *Mailbox) connect(ctx context.Context) (*imapclient.Client, error) {
	opts := &imapclient.Options{
		TLSConfig: &tls.Config{InsecureSkipVerify: m.cfg.InsecureSkipVerify}, // #nosec G402 -- explicit opt-in
	}

	var (
		client *imapclient.Client
		err    error
	)
	if m.cfg.StartTLS {
		client, err = imapclient.DialStartTLS(m.cfg.Address, opts)
	} else {
		client, err = imapclient.DialTLS(m.cfg.Address, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", m.cfg.Address, err)
	}

	if err := client.Login(m.cfg.User, m.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("IMAP login failed for %s: %w", m.cfg.User, err)
	}
	if _, err := client.Select(m.cfg.Mailbox, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting %s: %w", m.cfg.Mailbox, err)
	}

	// a cancelled caller tears the connection down so pending commands return
	go func() {
		<-ctx.Done()
		_ = client.Close()
	}()
	return client, nil
}

// ListUnread returns up to PageSize unseen messages, newest first.
func (m *Mailbox) ListUnread(ctx context.Context) ([]document.Message, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	searchData, err := client.UIDSearch(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}
	uids := newest(searchData.AllUIDs(), m.cfg.PageSize)
	if len(uids) == 0 {
		return []document.Message{}, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:     true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	out := make([]document.Message, 0, len(uids))
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			m.log.Warnw("Skipping message that could not be fetched", "error", err)
			continue
		}
		out = append(out, toMessage(buf, buf.FindBodySection(bodySection)))
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	sortNewestFirst(out)
	m.log.Debugw("Listed unread messages", "mailbox", m.cfg.Mailbox, "count", len(out))
	return out, nil
}

// MarkRead adds \Seen to the message with the given UID. A rejected store is
// reported as false; only a connection problem is an error.
func (m *Mailbox) MarkRead(ctx context.Context, id string) (bool, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil || uid == 0 {
		m.log.Warnw("Cannot mark message read: invalid UID", system.MessageFields(id, "")...)
		return false, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := m.connect(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = client.Logout().Wait() }()

	err = client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil).Close()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return false, err
		}
		m.log.Warnw("Mark as read failed", append(system.MessageFields(id, ""), "error", err)...)
		return false, nil
	}
	return true, nil
}

// newest keeps the n highest UIDs, which are the most recently delivered.
func newest(uids []imap.UID, n int) []imap.UID {
	uids = slices.Clone(uids)
	slices.Sort(uids)
	if n > 0 && len(uids) > n {
		uids = uids[len(uids)-n:]
	}
	return uids
}

func sortNewestFirst(msgs []document.Message) {
	slices.SortStableFunc(msgs, func(a, b document.Message) int {
		return b.ReceivedDateTime.Compare(a.ReceivedDateTime)
	})
}

func toMessage(buf *imapclient.FetchMessageBuffer, raw []byte) document.Message {
	msg := document.Message{
		ID:               strconv.FormatUint(uint64(buf.UID), 10),
		ReceivedDateTime: buf.InternalDate,
	}
	if buf.Envelope != nil {
		msg.Subject = buf.Envelope.Subject
		if len(buf.Envelope.From) > 0 {
			msg.From = buf.Envelope.From[0].Addr()
		}
		if msg.ReceivedDateTime.IsZero() {
			msg.ReceivedDateTime = buf.Envelope.Date
		}
	}
	msg.ReceivedDateTime = msg.ReceivedDateTime.UTC().Truncate(time.Second)
	if raw != nil {
		msg.Body = bodyText(raw)
	}
	return msg
}

// bodyText returns the HTML part of a MIME message, or its plain text part
// when there is no HTML.
func bodyText(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	defer mr.Close()

	var text, html string
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(contentType, "text/html") && html == "":
			html = string(body)
		case (contentType == "" || strings.HasPrefix(contentType, "text/plain")) && text == "":
			text = string(body)
		}
	}
	if html != "" {
		return html
	}
	return text
}
