package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"pairwatch/config"
	"pairwatch/logger"
)

// SMTPNotifier sends mail through an SMTP relay. The connection is upgraded
// with STARTTLS and delivery fails when the server cannot offer it, unless the
// configured TLS policy relaxes that.
type SMTPNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	timeout  time.Duration
	policy   mail.TLSPolicy
	log      *logger.Log

	tlsConfig *tls.Config
}

func NewSMTPNotifier(cfg config.SMTPConfig, timeout time.Duration) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("smtp host and port are required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("smtp sender and recipients are required")
	}
	policy, err := tlsPolicy(cfg.TLS)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &SMTPNotifier{
		host:      cfg.Host,
		port:      cfg.Port,
		username:  cfg.Username,
		password:  cfg.Password,
		from:      cfg.From,
		to:        append([]string(nil), cfg.To...),
		timeout:   timeout,
		policy:    policy,
		log:       logger.GetLogger(),
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}, nil
}

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch strings.ToLower(name) {
	case "", "mandatory":
		return mail.TLSMandatory, nil
	case "opportunistic":
		return mail.TLSOpportunistic, nil
	case "none":
		return mail.NoTLS, nil
	default:
		return mail.TLSMandatory, fmt.Errorf("unknown smtp tls policy %q", name)
	}
}

func (s *SMTPNotifier) Name() string { return "smtp" }

func (s *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	start := time.Now()
	if err := s.send(ctx, msg); err != nil {
		return deliveryError(s.Name(), err)
	}
	logger.LogPerformanceEntry(s.log.WithComponent("smtp_notifier").WithFields(logger.Fields{
		"message_id": msg.ID,
		"recipients": len(s.to),
	}), "smtp_notifier", "send", time.Since(start), nil)
	s.log.WithComponent("smtp_notifier").WithField("message_id", msg.ID).Info("email alert sent")
	return nil
}

func (s *SMTPNotifier) send(ctx context.Context, msg Message) error {
	m, err := s.newMsg(msg)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(s.port),
		mail.WithTimeout(s.timeout),
		mail.WithTLSPolicy(s.policy),
		mail.WithTLSConfig(s.tlsConfig),
		mail.WithHELO("localhost"),
	}
	if s.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.username),
			mail.WithPassword(s.password),
		)
	}
	client, err := mail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, m)
}

// newMsg renders a plain text message. The alert id doubles as Message-ID.
func (s *SMTPNotifier) newMsg(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return nil, fmt.Errorf("from %s: %w", s.from, err)
	}
	if err := m.To(s.to...); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	m.Subject(msg.Subject)

	created := msg.Created
	if created.IsZero() {
		created = time.Now()
	}
	m.SetDateWithValue(created)
	if msg.ID != "" {
		m.SetMessageIDWithValue(msg.ID + "@pairwatch")
	} else {
		m.SetMessageID()
	}
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}
