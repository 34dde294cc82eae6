package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/storage/biz"
)

// MailerConfig holds SMTP settings for outbound notifications
type MailerConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	FromAddr       string
	FromName       string
	Enabled        bool
	MaxRetries     int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
}

// AddressResolver maps an owner id to a notification address
type AddressResolver interface {
	EmailFor(ctx context.Context, ownerID string) (string, error)
}

// Mailer delivers storage events over SMTP. It implements biz.WarningSink;
// sends happen on a background goroutine so callers never block on SMTP.
type Mailer struct {
	config   MailerConfig
	resolver AddressResolver
	logger   *logger.Logger
}

// NewMailer creates a mailer
func NewMailer(cfg MailerConfig, resolver AddressResolver, log *logger.Logger) (*Mailer, error) {
	if cfg.Enabled {
		if cfg.Host == "" {
			return nil, fmt.Errorf("smtp host is required")
		}
		if cfg.FromAddr == "" {
			return nil, fmt.Errorf("from address is required")
		}
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 2 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Mailer{
		config:   cfg,
		resolver: resolver,
		logger:   log,
	}, nil
}

// QuotaWarning implements biz.WarningSink
func (m *Mailer) QuotaWarning(w biz.QuotaWarning) {
	if !m.config.Enabled {
		return
	}
	go m.sendQuotaWarning(w)
}

func (m *Mailer) sendQuotaWarning(w biz.QuotaWarning) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.SendTimeout+m.config.ConnectTimeout)
	defer cancel()

	addr, err := m.resolver.EmailFor(ctx, w.OwnerID)
	if err != nil {
		m.logger.Error("failed to resolve notification address",
			zap.String("owner_id", w.OwnerID),
			zap.Error(err),
		)
		return
	}

	usedPct := float64(w.UsedBytes) / float64(w.LimitBytes) * 100
	subject := "Your storage is almost full"
	body := fmt.Sprintf(
		"You are using %.1f%% of your storage quota (%d of %d bytes).\n"+
			"Delete files you no longer need or request a larger quota.\n",
		usedPct, w.UsedBytes, w.LimitBytes,
	)

	if err := m.send(ctx, addr, subject, body); err != nil {
		m.logger.Error("failed to send quota warning",
			zap.String("owner_id", w.OwnerID),
			zap.Error(err),
		)
		return
	}
	m.logger.Info("quota warning sent", zap.String("owner_id", w.OwnerID))
}

// send delivers one message with retries
func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.config.FromName, m.config.FromAddr); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(m.config.Port),
		mail.WithTimeout(m.config.ConnectTimeout),
	}
	if m.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.config.Username),
			mail.WithPassword(m.config.Password),
		)
	}

	client, err := mail.NewClient(m.config.Host, opts...)
	if err != nil {
		return fmt.Errorf("create mail client: %w", err)
	}
	defer client.Close()

	var lastErr error
	for attempt := 1; attempt <= m.config.MaxRetries; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, m.config.SendTimeout)
		err := client.DialAndSendWithContext(sendCtx, msg)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < m.config.MaxRetries {
			time.Sleep(m.config.RetryInterval)
		}
	}
	return fmt.Errorf("failed to send after %d attempts: %w", m.config.MaxRetries, lastErr)
}

// NopResolver derives a placeholder address from the owner id. Deployments
// wire a directory-backed resolver instead.
type NopResolver struct {
	Domain string
}

// EmailFor implements AddressResolver
func (r NopResolver) EmailFor(_ context.Context, ownerID string) (string, error) {
	domain := r.Domain
	if domain == "" {
		domain = "example.com"
	}
	return ownerID + "@" + domain, nil
}
