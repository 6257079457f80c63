// Command poller runs the order bot with Telegram long polling, keeping
// state on the local disk.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"order-bot/handler"
	"order-bot/internal/archive"
	"order-bot/internal/catalog"
	"order-bot/internal/config"
	"order-bot/internal/conversation"
	"order-bot/internal/integrations/paramstore"
	"order-bot/internal/integrations/sheets"
	"order-bot/internal/integrations/telegram"
	"order-bot/internal/invoice"
	"order-bot/internal/metrics"
	"order-bot/internal/notify"
	"order-bot/internal/orders"
	"order-bot/internal/session"
	"order-bot/internal/usecase"
)

const drainTimeout = 90 * time.Second

type sessionBackend interface {
	usecase.SessionStore
	usecase.SessionRanger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("poller stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ---- Configuration ----
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"), os.Getenv)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()})))

	if cfg.ParamPrefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return err
		}
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return err
		}
		if err := cfg.ResolveSecrets(ctx, params); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ---- State ----
	checkpoint, err := orders.NewFileCheckpoint(cfg.Storage.OrdersFile)
	if err != nil {
		return err
	}
	orderStore, err := orders.NewMemoryStore(checkpoint)
	if err != nil {
		return err
	}
	archiver, err := archive.NewFileWriter(cfg.Storage.ArchiveFile)
	if err != nil {
		return err
	}
	var sessions sessionBackend = session.NewMemoryStore()
	if cfg.Storage.SessionDir != "" {
		pebbleStore, err := session.NewPebbleStore(cfg.Storage.SessionDir)
		if err != nil {
			return err
		}
		defer func() {
			if err := pebbleStore.Close(); err != nil {
				slog.Warn("close session store", "err", err)
			}
		}()
		sessions = pebbleStore
	}
	// Without SESSION_DIR no session survives a restart, so every restored
	// order is dropped here.
	if _, err := usecase.PruneOrphanOrders(ctx, sessions, orderStore); err != nil {
		return err
	}

	// ---- Clients ----
	reg := metrics.NewRegistry()
	creds, err := cfg.GoogleCredentials()
	if err != nil {
		return err
	}
	values, err := sheets.NewService(ctx, creds)
	if err != nil {
		return err
	}
	sheet, err := sheets.New(values, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName)
	if err != nil {
		return err
	}
	products, err := catalog.New(sheet, reg)
	if err != nil {
		return err
	}
	renderer, err := invoice.New(cfg.FontFile)
	if err != nil {
		return err
	}
	mailer, err := notify.NewSMTPClient(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Sender,
		Password: cfg.SMTP.Password,
		Timeout:  cfg.SMTP.Timeout,
	})
	if err != nil {
		return err
	}
	sender, err := notify.NewSender(mailer, renderer, cfg.SMTP.Sender, cfg.SMTP.Recipient)
	if err != nil {
		return err
	}
	bot, err := telegram.NewBot(cfg.Telegram.Token)
	if err != nil {
		return err
	}
	messenger, err := telegram.New(bot)
	if err != nil {
		return err
	}

	// ---- Service ----
	machine, err := conversation.New(products, orderStore)
	if err != nil {
		return err
	}
	svc, err := usecase.NewOrderService(machine, sessions, orderStore, messenger, sender, archiver,
		usecase.WithObserver(reg), usecase.WithAsyncFulfilment())
	if err != nil {
		return err
	}
	poller, err := handler.NewPoller(svc)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: reg.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "err", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	// Polling and a webhook are mutually exclusive on the Bot API side.
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		slog.Warn("delete webhook", "err", err)
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.Telegram.PollTimeout
	updates := bot.GetUpdatesChan(u)
	slog.Info("polling started", "bot", bot.Self.UserName)

	err = poller.Run(ctx, updates)
	bot.StopReceivingUpdates()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if derr := svc.Drain(drainCtx); derr != nil {
		slog.Warn("fulfilment drain incomplete", "err", derr)
	}
	if ferr := orderStore.Flush(drainCtx); ferr != nil {
		slog.Warn("flush orders", "err", ferr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
