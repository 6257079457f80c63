package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"order-bot/handler"
	"order-bot/internal/catalog"
	"order-bot/internal/config"
	"order-bot/internal/conversation"
	"order-bot/internal/integrations/paramstore"
	"order-bot/internal/integrations/sheets"
	"order-bot/internal/integrations/telegram"
	"order-bot/internal/invoice"
	"order-bot/internal/metrics"
	"order-bot/internal/notify"
	"order-bot/internal/repository"
	"order-bot/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"), os.Getenv)
	if err != nil {
		fatal("failed to load config", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()})))
	if cfg.Storage.StateTable == "" {
		slog.Error("required environment variable is not set", "key", "STATE_TABLE")
		os.Exit(1)
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("failed to load AWS config", err)
	}

	// ---- Secrets ----
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		fatal("failed to create SSM client", err)
	}
	if err := cfg.ResolveSecrets(ctx, params); err != nil {
		fatal("failed to resolve secrets", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", err)
	}

	// ---- Clients ----
	state, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.Storage.StateTable)
	if err != nil {
		fatal("failed to create state client", err)
	}
	reg := metrics.NewRegistry()

	creds, err := cfg.GoogleCredentials()
	if err != nil {
		fatal("failed to read google credentials", err)
	}
	values, err := sheets.NewService(ctx, creds)
	if err != nil {
		fatal("failed to create sheets service", err)
	}
	sheet, err := sheets.New(values, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName)
	if err != nil {
		fatal("failed to create sheets client", err)
	}
	products, err := catalog.New(sheet, reg)
	if err != nil {
		fatal("failed to create catalog", err)
	}

	renderer, err := invoice.New(cfg.FontFile)
	if err != nil {
		fatal("failed to load invoice font", err)
	}
	mailer, err := notify.NewSMTPClient(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Sender,
		Password: cfg.SMTP.Password,
		Timeout:  cfg.SMTP.Timeout,
	})
	if err != nil {
		fatal("failed to create SMTP client", err)
	}
	sender, err := notify.NewSender(mailer, renderer, cfg.SMTP.Sender, cfg.SMTP.Recipient, notify.WithTempDir(os.TempDir()))
	if err != nil {
		fatal("failed to create email sender", err)
	}

	bot, err := telegram.NewBot(cfg.Telegram.Token)
	if err != nil {
		fatal("failed to create telegram bot", err)
	}
	messenger, err := telegram.New(bot)
	if err != nil {
		fatal("failed to create telegram client", err)
	}

	// ---- Handler ----
	orderStore := state.Orders()
	machine, err := conversation.New(products, orderStore)
	if err != nil {
		fatal("failed to create conversation machine", err)
	}
	// Lambda freezes the container after the response, so fulfilment runs
	// inside the invocation.
	svc, err := usecase.NewOrderService(machine, state.Sessions(), orderStore, messenger, sender, state.Archive(),
		usecase.WithObserver(reg))
	if err != nil {
		fatal("failed to create order service", err)
	}

	h, err := handler.NewHandler(svc, cfg.Telegram.WebhookSecret)
	if err != nil {
		fatal("failed to create handler", err)
	}

	// No scrape endpoint in Lambda: counters go to the log after each call.
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		resp, err := h.Handle(ctx, req)
		reg.LogSnapshot(ctx, slog.Default())
		return resp, err
	})
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
