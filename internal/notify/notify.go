// Package notify emails confirmed orders with the PDF invoice attached.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"order-bot/internal/domain"
)

// ErrEmptyOrder is returned when an order without line items is sent.
var ErrEmptyOrder = errors.New("notify: order has no products")

// mailAPI is the minimal go-mail client interface required by Sender.
// *mail.Client satisfies it.
type mailAPI interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Renderer writes the invoice document for an order.
type Renderer interface {
	Render(o *domain.Order, w io.Writer) error
}

// Sender delivers one email per call. It never retries.
type Sender struct {
	api       mailAPI
	renderer  Renderer
	from      string
	recipient string
	tempDir   string
}

type Option func(*Sender)

// WithTempDir sets where the transient PDF is written.
func WithTempDir(dir string) Option {
	return func(s *Sender) { s.tempDir = dir }
}

func NewSender(api mailAPI, renderer Renderer, from, recipient string, opts ...Option) (*Sender, error) {
	if api == nil {
		return nil, errors.New("notify: mail client must not be nil")
	}
	if renderer == nil {
		return nil, errors.New("notify: renderer must not be nil")
	}
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("notify: sender address must not be empty")
	}
	if strings.TrimSpace(recipient) == "" {
		return nil, errors.New("notify: recipient address must not be empty")
	}
	s := &Sender{api: api, renderer: renderer, from: from, recipient: recipient}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SMTPConfig describes an implicit-TLS submission relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// NewSMTPClient builds an authenticated go-mail client using implicit TLS.
func NewSMTPClient(cfg SMTPConfig) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	c, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: create smtp client: %w", err)
	}
	return c, nil
}

// Send renders the invoice, emails it and removes the transient PDF whether
// or not delivery succeeded.
func (s *Sender) Send(ctx context.Context, order domain.Order) error {
	if len(order.Items) == 0 {
		return ErrEmptyOrder
	}

	pdfPath, err := s.renderToFile(&order)
	if pdfPath != "" {
		defer func() {
			if rmErr := os.Remove(pdfPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				slog.Warn("notify: remove temp pdf", "path", pdfPath, "err", rmErr)
			}
		}()
	}
	if err != nil {
		return err
	}

	msg, err := s.buildMessage(order, pdfPath)
	if err != nil {
		return err
	}
	if err := s.api.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: deliver: %w", err)
	}
	slog.Info("order email sent", "manager", order.Manager, "client", order.Client, "items", len(order.Items))
	return nil
}

func (s *Sender) renderToFile(order *domain.Order) (string, error) {
	f, err := os.CreateTemp(s.tempDir, "order-*.pdf")
	if err != nil {
		return "", fmt.Errorf("notify: create temp pdf: %w", err)
	}
	path := f.Name()
	if err := s.renderer.Render(order, f); err != nil {
		_ = f.Close()
		return path, fmt.Errorf("notify: render pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("notify: close temp pdf: %w", err)
	}
	return path, nil
}

func (s *Sender) buildMessage(order domain.Order, pdfPath string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return nil, fmt.Errorf("notify: from address: %w", err)
	}
	if err := m.To(s.recipient); err != nil {
		return nil, fmt.Errorf("notify: recipient address: %w", err)
	}
	m.Subject("New order from " + order.Manager)

	html, err := HTMLSummary(order)
	if err != nil {
		return nil, err
	}
	m.SetBodyString(mail.TypeTextPlain, PlainSummary(order))
	m.AddAlternativeString(mail.TypeTextHTML, html)
	m.AttachFile(pdfPath, mail.WithFileName("order.pdf"))
	return m, nil
}
