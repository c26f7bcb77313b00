// Package imap implements the mailbox port over IMAP.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"leadestate_server/core/port/out"
	"leadestate_server/pkg/logger"
)

// Config holds mailbox credentials.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	DialTimeout time.Duration
}

// Client opens IMAP sessions.
type Client struct {
	cfg Config
}

var _ out.MailboxClient = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	return &Client{cfg: cfg}
}

func (c *Client) Configured() bool {
	return c.cfg.Host != "" && c.cfg.Username != "" && c.cfg.Password != ""
}

// Connect dials, upgrades to TLS and logs in. Port 993 uses implicit TLS,
// anything else STARTTLS.
func (c *Client) Connect(ctx context.Context) (out.MailboxSession, error) {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}
	tlsConfig := &tls.Config{ServerName: c.cfg.Host}

	var (
		client *imapclient.Client
		err    error
	)
	if c.cfg.Port == 993 {
		conn, dialErr := (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
		if dialErr != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, dialErr)
		}
		client = imapclient.New(conn, &imapclient.Options{TLSConfig: tlsConfig})
	} else {
		conn, dialErr := dialer.DialContext(ctx, "tcp", addr)
		if dialErr != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, dialErr)
		}
		client, err = imapclient.NewStartTLS(conn, &imapclient.Options{TLSConfig: tlsConfig})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to start tls: %w", err)
		}
	}

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to login as %s: %w", c.cfg.Username, err)
	}

	logger.Debug("[IMAP] Connected to %s as %s", addr, c.cfg.Username)
	return &Session{client: client}, nil
}

// =============================================================================
// Session
// =============================================================================

// Session is one authenticated connection.
type Session struct {
	client *imapclient.Client
	mu     sync.Mutex
}

var _ out.MailboxSession = (*Session)(nil)

// Lock selects the mailbox and holds the session until release is called.
func (s *Session) Lock(ctx context.Context, mailbox string) (func(), error) {
	s.mu.Lock()
	if _, err := s.client.Select(mailbox, nil).Wait(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to select %s: %w", mailbox, err)
	}

	var once sync.Once
	return func() { once.Do(s.mu.Unlock) }, nil
}

// fullSource is BODY.PEEK[], which leaves \Seen untouched.
var fullSource = &goimap.FetchItemBodySection{Peek: true}

func fetchOptions() *goimap.FetchOptions {
	return &goimap.FetchOptions{
		UID:         true,
		Flags:       true,
		Envelope:    true,
		BodySection: []*goimap.FetchItemBodySection{fullSource},
	}
}

// FetchSince streams messages with UID > lastUID in UID order. The range
// lastUID+1:* always matches the newest message, so lower UIDs are dropped.
func (s *Session) FetchSince(ctx context.Context, lastUID uint32, fn func(*out.FetchedMessage) error) error {
	var uidSet goimap.UIDSet
	uidSet.AddRange(goimap.UID(lastUID+1), 0)

	cmd := s.client.Fetch(uidSet, fetchOptions())
	defer cmd.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := cmd.Next()
		if msg == nil {
			break
		}
		buf, err := collect(msg)
		if err != nil {
			return fmt.Errorf("failed to read fetch response: %w", err)
		}
		if buf.UID <= lastUID {
			continue
		}
		if err := fn(buildMessage(buf)); err != nil {
			return err
		}
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}
	return nil
}

func (s *Session) SearchUnseen(ctx context.Context) ([]uint32, error) {
	criteria := &goimap.SearchCriteria{NotFlag: []goimap.Flag{goimap.FlagSeen}}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to search unseen: %w", err)
	}

	uids := data.AllUIDs()
	result := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		result = append(result, uint32(uid))
	}
	return result, nil
}

// FetchOne returns nil, nil when the UID no longer exists.
func (s *Session) FetchOne(ctx context.Context, uid uint32) (*out.FetchedMessage, error) {
	cmd := s.client.Fetch(goimap.UIDSetNum(goimap.UID(uid)), fetchOptions())
	defer cmd.Close()

	var found *out.FetchedMessage
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		buf, err := collect(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to read fetch response: %w", err)
		}
		if buf.UID == uid {
			found = buildMessage(buf)
		}
	}

	if err := cmd.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch uid %d: %w", uid, err)
	}
	return found, nil
}

func (s *Session) AddFlags(ctx context.Context, uid uint32, flags ...string) error {
	imapFlags := make([]goimap.Flag, 0, len(flags))
	for _, f := range flags {
		imapFlags = append(imapFlags, goimap.Flag(f))
	}

	store := &goimap.StoreFlags{
		Op:     goimap.StoreFlagsAdd,
		Silent: true,
		Flags:  imapFlags,
	}
	if err := s.client.Store(goimap.UIDSetNum(goimap.UID(uid)), store, nil).Close(); err != nil {
		return fmt.Errorf("failed to set flags on uid %d: %w", uid, err)
	}
	return nil
}

func (s *Session) Logout() error {
	return s.client.Logout().Wait()
}

func (s *Session) Close() error {
	return s.client.Close()
}

func collect(msg *imapclient.FetchMessageData) (*fetchedBuffer, error) {
	data, err := msg.Collect()
	if err != nil {
		return nil, err
	}

	buf := &fetchedBuffer{
		UID:      uint32(data.UID),
		Envelope: data.Envelope,
	}
	for _, f := range data.Flags {
		buf.Flags = append(buf.Flags, string(f))
	}
	buf.Raw = data.FindBodySection(fullSource)
	return buf, nil
}
