// Package config loads the bot configuration from an optional YAML file and
// the environment. Environment values win over the file.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSheetName   = "stock1"
	DefaultSMTPHost    = "smtp.gmail.com"
	DefaultSMTPPort    = 465
	DefaultOrdersFile  = "orders_data.json"
	DefaultArchiveFile = "orders_archive.json"
	DefaultPollTimeout = 60
)

type Telegram struct {
	Token         string `yaml:"token"`
	WebhookSecret string `yaml:"webhook_secret"`
	PollTimeout   int    `yaml:"poll_timeout"`
}

type SMTP struct {
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Sender    string        `yaml:"sender"`
	Password  string        `yaml:"password"`
	Recipient string        `yaml:"recipient"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Sheets struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
	CredentialsFile string `yaml:"credentials_file"`
	// CredentialsJSON is the service-account key itself; it takes precedence
	// over CredentialsFile.
	CredentialsJSON string `yaml:"-"`
}

type Storage struct {
	OrdersFile  string `yaml:"orders_file"`
	ArchiveFile string `yaml:"archive_file"`
	SessionDir  string `yaml:"session_dir"`
	// StateTable is the DynamoDB table holding sessions, orders and archive
	// entries for the webhook deployment.
	StateTable string `yaml:"state_table"`
}

type Config struct {
	Telegram    Telegram `yaml:"telegram"`
	SMTP        SMTP     `yaml:"smtp"`
	Sheets      Sheets   `yaml:"sheets"`
	Storage     Storage  `yaml:"storage"`
	FontFile    string   `yaml:"font_file"`
	LogLevel    string   `yaml:"log_level"`
	MetricsAddr string   `yaml:"metrics_addr"`
	ParamPrefix string   `yaml:"param_prefix"`
}

// MissingError lists every required key that has no value.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "config: missing required values: " + strings.Join(e.Keys, ", ")
}

// Load reads the YAML file at path (skipped when path is empty), overlays
// environment values from getenv and fills defaults.
func Load(path string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	var c Config
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := c.overlay(getenv); err != nil {
		return Config{}, err
	}
	c.defaults()
	return c, nil
}

func (c *Config) overlay(getenv func(string) string) error {
	str := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str(&c.Telegram.Token, "BOT_TOKEN")
	str(&c.Telegram.WebhookSecret, "WEBHOOK_SECRET")
	str(&c.SMTP.Host, "SMTP_HOST")
	str(&c.SMTP.Sender, "EMAIL_SENDER")
	str(&c.SMTP.Password, "EMAIL_PASSWORD")
	str(&c.SMTP.Recipient, "EMAIL_RECIPIENT")
	str(&c.Sheets.SpreadsheetID, "SPREADSHEET_ID")
	str(&c.Sheets.SheetName, "SHEET_NAME")
	str(&c.Sheets.CredentialsFile, "GOOGLE_CREDENTIALS_FILE")
	str(&c.Storage.OrdersFile, "ORDERS_FILE")
	str(&c.Storage.ArchiveFile, "ARCHIVE_FILE")
	str(&c.Storage.SessionDir, "SESSION_DIR")
	str(&c.Storage.StateTable, "STATE_TABLE")
	str(&c.FontFile, "FONT_FILE")
	str(&c.LogLevel, "LOG_LEVEL")
	str(&c.MetricsAddr, "METRICS_ADDR")
	str(&c.ParamPrefix, "PARAM_PREFIX")

	if v := strings.TrimSpace(getenv("SMTP_PORT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: SMTP_PORT: %w", err)
		}
		c.SMTP.Port = n
	}
	if v := strings.TrimSpace(getenv("SMTP_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: SMTP_TIMEOUT: %w", err)
		}
		c.SMTP.Timeout = d
	}
	if v := strings.TrimSpace(getenv("POLL_TIMEOUT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: POLL_TIMEOUT: %w", err)
		}
		c.Telegram.PollTimeout = n
	}
	return nil
}

func (c *Config) defaults() {
	if c.Sheets.SheetName == "" {
		c.Sheets.SheetName = DefaultSheetName
	}
	if c.SMTP.Host == "" {
		c.SMTP.Host = DefaultSMTPHost
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = DefaultSMTPPort
	}
	if c.Storage.OrdersFile == "" {
		c.Storage.OrdersFile = DefaultOrdersFile
	}
	if c.Storage.ArchiveFile == "" {
		c.Storage.ArchiveFile = DefaultArchiveFile
	}
	if c.Telegram.PollTimeout <= 0 {
		c.Telegram.PollTimeout = DefaultPollTimeout
	}
	c.ParamPrefix = strings.TrimRight(c.ParamPrefix, "/")
}

// Validate reports every missing required value at once.
func (c Config) Validate() error {
	var missing []string
	check := func(v, key string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	check(c.Telegram.Token, "BOT_TOKEN")
	check(c.SMTP.Sender, "EMAIL_SENDER")
	check(c.SMTP.Password, "EMAIL_PASSWORD")
	check(c.SMTP.Recipient, "EMAIL_RECIPIENT")
	check(c.Sheets.SpreadsheetID, "SPREADSHEET_ID")
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	return nil
}

// Getter is the interface that wraps GetParameter.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ResolveSecrets fills empty secrets from the parameter store under
// ParamPrefix: bot_token, email_password, webhook_secret and
// google_credentials. It is a no-op without a prefix.
func (c *Config) ResolveSecrets(ctx context.Context, params Getter) error {
	if c.ParamPrefix == "" {
		return nil
	}
	if params == nil {
		return errors.New("config: parameter getter must not be nil")
	}
	secrets := []struct {
		dst      *string
		name     string
		optional bool
	}{
		{&c.Telegram.Token, "bot_token", false},
		{&c.SMTP.Password, "email_password", false},
		{&c.Telegram.WebhookSecret, "webhook_secret", true},
		{&c.Sheets.CredentialsJSON, "google_credentials", true},
	}
	for _, s := range secrets {
		if *s.dst != "" {
			continue
		}
		v, err := params.GetParameter(ctx, c.ParamPrefix+"/"+s.name)
		if err != nil {
			if s.optional {
				slog.Debug("optional secret not resolved", "name", s.name, "err", err)
				continue
			}
			return fmt.Errorf("config: resolve %s: %w", s.name, err)
		}
		*s.dst = strings.TrimSpace(v)
	}
	return nil
}

// GoogleCredentials returns the service-account key bytes.
func (c Config) GoogleCredentials() ([]byte, error) {
	if c.Sheets.CredentialsJSON != "" {
		return []byte(c.Sheets.CredentialsJSON), nil
	}
	if c.Sheets.CredentialsFile == "" {
		return nil, errors.New("config: google credentials are not configured")
	}
	raw, err := os.ReadFile(c.Sheets.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("config: read google credentials: %w", err)
	}
	return raw, nil
}

// Level maps LOG_LEVEL to a slog level; unknown values mean info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
