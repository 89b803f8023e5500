// Package mail implements Spectral's two email-adjacent collaborators: an
// SMTP Sender for brokers whose removal method is email-based, and an IMAP
// Poller that watches an inbox for broker confirmation replies and marks
// the matching removal attempt Completed.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/infiniteinsight/spectral/internal/broker"
	"github.com/infiniteinsight/spectral/internal/db"
	"github.com/infiniteinsight/spectral/internal/repositories"
)

// VerificationWindow bounds how far back the IMAP poller searches for a
// broker's confirmation reply.
const VerificationWindow = 7 * 24 * time.Hour

// SMTPConfig configures outbound removal-request email.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS selects implicit TLS (SMTPS, typically port 465). When false,
	// plaintext or STARTTLS negotiation is used via smtp.SendMail
	// (typically port 587).
	TLS bool
}

// Sender delivers removal-request emails via SMTP. It implements
// removal.Sender.
type Sender struct {
	cfg SMTPConfig
}

// NewSender returns a Sender configured against cfg.
func NewSender(cfg SMTPConfig) *Sender {
	return &Sender{cfg: cfg}
}

// Send delivers a single email to a broker's opt-out address.
func (s *Sender) Send(ctx context.Context, to, subject, body string) error {
	msg := buildMessage(s.cfg.From, to, subject, body)
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	if s.cfg.TLS {
		return s.sendTLS(addr, to, msg)
	}
	return s.sendPlain(addr, to, msg)
}

func (s *Sender) sendPlain(addr, to string, msg []byte) error {
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("mail: smtp.SendMail: %w", err)
	}
	return nil
}

func (s *Sender) sendTLS(addr, to string, msg []byte) error {
	tlsCfg := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}

	conn, err := tls.Dial("tcp", addr, tlsCfg)
	if err != nil {
		return fmt.Errorf("mail: tls.Dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("mail: smtp.NewClient: %w", err)
	}
	defer client.Close()

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mail: smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("mail: RCPT TO %s: %w", to, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("mail: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mail: close DATA: %w", err)
	}
	return client.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}

// IMAPConfig configures the verification poller's inbox connection.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Poller watches an IMAP inbox for broker confirmation replies. It
// implements scheduler.RemovalVerifier.
type Poller struct {
	cfg      IMAPConfig
	registry *broker.Registry
	attempts repositories.RemovalAttemptRepository
	logger   *zap.Logger
}

// NewPoller returns a Poller backed by the given broker registry (to
// resolve each Submitted attempt's expected sender address) and removal
// attempt repository (to record completions).
func NewPoller(cfg IMAPConfig, registry *broker.Registry, attempts repositories.RemovalAttemptRepository, logger *zap.Logger) *Poller {
	return &Poller{cfg: cfg, registry: registry, attempts: attempts, logger: logger}
}

// matchesBrokerSender reports whether sender is one of the known broker
// addresses, case-insensitively (original implementation's
// matches_broker_sender).
func matchesBrokerSender(sender string, brokerEmails []string) bool {
	sender = strings.ToLower(sender)
	for _, b := range brokerEmails {
		if strings.ToLower(b) == sender {
			return true
		}
	}
	return false
}

// PollSubmitted implements the verify_removals standing job: it looks up
// every Submitted removal attempt whose broker uses email-based removal,
// connects to the configured inbox, and searches the last
// VerificationWindow of unseen mail for a reply from that broker's
// address. A match marks the attempt Completed.
func (p *Poller) PollSubmitted(ctx context.Context) error {
	submitted, err := p.attempts.ListByStatus(ctx, db.RemovalStatusSubmitted)
	if err != nil {
		return fmt.Errorf("mail: list submitted attempts: %w", err)
	}

	emailToAttempt := make(map[string]string)
	for _, attempt := range submitted {
		def, err := p.registry.Get(attempt.BrokerID)
		if err != nil {
			continue
		}
		if def.Removal.Kind != broker.RemovalEmail || def.Removal.To == "" {
			continue
		}
		emailToAttempt[strings.ToLower(def.Removal.To)] = attempt.ID.String()
	}
	if len(emailToAttempt) == 0 {
		return nil
	}

	brokerEmails := make([]string, 0, len(emailToAttempt))
	for addr := range emailToAttempt {
		brokerEmails = append(brokerEmails, addr)
	}

	client, err := imapclient.DialTLS(net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port)), nil)
	if err != nil {
		return fmt.Errorf("mail: imap dial: %w", err)
	}
	defer client.Close()

	if err := client.Login(p.cfg.Username, p.cfg.Password).Wait(); err != nil {
		return fmt.Errorf("mail: imap login: %w", err)
	}
	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("mail: imap select inbox: %w", err)
	}

	since := time.Now().Add(-VerificationWindow)
	searchData, err := client.Search(&imapv2.SearchCriteria{
		Since:   since,
		NotFlag: []imapv2.Flag{imapv2.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return fmt.Errorf("mail: imap search: %w", err)
	}
	seqSet, ok := searchData.All.(imapv2.SeqSet)
	if !ok || !searchData.All.Dynamic() && len(seqSet) == 0 {
		return client.Logout().Wait()
	}

	fetchCmd := client.Fetch(seqSet, &imapv2.FetchOptions{Envelope: true})
	defer fetchCmd.Close()

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			p.logger.Warn("mail: failed to collect fetched message", zap.Error(err))
			continue
		}
		if buf.Envelope == nil || len(buf.Envelope.From) == 0 {
			continue
		}
		from := strings.ToLower(buf.Envelope.From[0].Addr())
		if !matchesBrokerSender(from, brokerEmails) {
			continue
		}
		attemptIDStr, ok := emailToAttempt[from]
		if !ok {
			continue
		}
		if err := p.markCompleted(ctx, attemptIDStr); err != nil {
			p.logger.Warn("mail: failed to mark removal attempt completed", zap.String("attempt_id", attemptIDStr), zap.Error(err))
		}
	}

	return client.Logout().Wait()
}

func (p *Poller) markCompleted(ctx context.Context, attemptIDStr string) error {
	id, err := uuid.Parse(attemptIDStr)
	if err != nil {
		return fmt.Errorf("mail: parse attempt id %q: %w", attemptIDStr, err)
	}
	attempt, err := p.attempts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	attempt.Status = db.RemovalStatusCompleted
	attempt.CompletedAt = &now
	return p.attempts.Update(ctx, attempt)
}
