package delivery

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"example.com/runcoach/internal/domain"
)

// SMTPConfig holds mail transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Sender   string
	Password string
	Receiver string
	Timeout  time.Duration
}

// SMTPNotifier sends plain-text mail over STARTTLS with PLAIN auth.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *slog.Logger
	now    func() time.Time
	send   func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTPNotifier constructs a notifier.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	n := &SMTPNotifier{cfg: cfg, logger: logger, now: time.Now}
	n.send = n.deliver
	return n
}

// Name identifies the notifier.
func (n *SMTPNotifier) Name() string { return "email" }

// Notify sends one message to the configured receiver.
func (n *SMTPNotifier) Notify(ctx context.Context, subject, body string) bool {
	start := time.Now()
	if n.cfg.Sender == "" || n.cfg.Password == "" || n.cfg.Receiver == "" {
		n.logger.Error("email not sent", "error", fmt.Errorf("%w: sender, password and receiver are required", domain.ErrDelivery))
		observeDelivery(n.Name(), start, false)
		return false
	}

	msg, err := n.compose(subject, body)
	if err != nil {
		n.logger.Error("email not sent", "error", fmt.Errorf("%w: %w", domain.ErrDelivery, err))
		observeDelivery(n.Name(), start, false)
		return false
	}
	if err := n.send(ctx, msg); err != nil {
		n.logger.Error("email not sent", "host", n.cfg.Host, "error", fmt.Errorf("%w: %w", domain.ErrDelivery, err))
		observeDelivery(n.Name(), start, false)
		return false
	}
	n.logger.Info("email sent", "receiver", n.cfg.Receiver, "subject", subject)
	observeDelivery(n.Name(), start, true)
	return true
}

func (n *SMTPNotifier) compose(subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.Sender); err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	if err := msg.To(n.cfg.Receiver); err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	msg.Subject(subject)
	msg.SetDateWithValue(n.now())
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// deliver requires STARTTLS before PLAIN auth; credentials are never sent in
// clear text.
func (n *SMTPNotifier) deliver(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(n.cfg.Host,
		mail.WithPort(n.cfg.Port),
		mail.WithTimeout(n.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTLSConfig(&tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.cfg.Sender),
		mail.WithPassword(n.cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send via %s:%d: %w", n.cfg.Host, n.cfg.Port, err)
	}
	return nil
}
