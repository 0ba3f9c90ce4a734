// Package notify delivers order notifications over SMTP. Delivery is
// fire-and-forget for callers: a failure is reported back for logging but
// never blocks or rolls back order creation.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/ezbo/shopbot/internal/config"
	"github.com/ezbo/shopbot/internal/orders"
)

const defaultTimeout = 10 * time.Second

// NewNotifier returns an SMTP notifier, or a no-op one when no SMTP host is
// configured.
func NewNotifier(cfg config.NotifyConfig, logger *slog.Logger) orders.Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SMTPHost == "" {
		logger.Info("Order notifications disabled: no SMTP host configured")
		return noopNotifier{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &smtpNotifier{
		cfg:    cfg,
		logger: logger.With("component", "notify"),
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, orders.Order) error { return nil }

type smtpNotifier struct {
	cfg    config.NotifyConfig
	logger *slog.Logger
}

// Notify delivers the order by speaking SMTP over a deadline-bounded
// connection. Every protocol exchange, not just the dial, is covered by the
// configured timeout, so a hung server can never stall the caller.
func (n *smtpNotifier) Notify(ctx context.Context, order orders.Order) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)

	conn, err := (&net.Dialer{Timeout: n.cfg.Timeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(n.cfg.Timeout)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to set SMTP deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, n.cfg.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.SMTPHost}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if n.cfg.Username != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("SMTP MAIL command failed: %w", err)
	}
	if err := client.Rcpt(n.cfg.To); err != nil {
		return fmt.Errorf("SMTP RCPT command failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command failed: %w", err)
	}
	if _, err := w.Write(buildMessage(n.cfg.From, n.cfg.To, order)); err != nil {
		return fmt.Errorf("failed to write notification body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish notification body: %w", err)
	}

	if err := client.Quit(); err != nil {
		n.logger.WarnContext(ctx, "SMTP quit failed after delivery", "error", err)
	}

	n.logger.InfoContext(ctx, "Order notification sent", "order_id", order.ID, "to", n.cfg.To)
	return nil
}

func buildMessage(from, to string, order orders.Order) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: New order #%d from %s\r\n", order.ID, order.Name)
	sb.WriteString("\r\n")
	fmt.Fprintf(&sb, "Name: %s\r\n", order.Name)
	fmt.Fprintf(&sb, "Mobile: %s\r\n", order.Mobile)
	fmt.Fprintf(&sb, "Address: %s\r\n", order.Address)
	fmt.Fprintf(&sb, "Product: %s\r\n", order.Product)
	fmt.Fprintf(&sb, "Price: %d\r\n", order.Price)
	fmt.Fprintf(&sb, "Delivery charge: %d\r\n", order.DeliveryCharge)
	fmt.Fprintf(&sb, "Total: %d\r\n", order.Total)
	fmt.Fprintf(&sb, "Payment method: %s\r\n", order.PaymentMethod)
	if order.TransactionID != "" {
		fmt.Fprintf(&sb, "Transaction ID: %s\r\n", order.TransactionID)
	}
	fmt.Fprintf(&sb, "Status: %s\r\n", order.Status)
	fmt.Fprintf(&sb, "Date: %s\r\n", order.Date)
	return []byte(sb.String())
}
