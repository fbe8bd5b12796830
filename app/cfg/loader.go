package cfg

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	StorageBackend string `long:"storage" env:"STORAGE_BACKEND" default:"sqlite" choice:"sqlite" choice:"badger" choice:"memory" description:"Key-value storage backend (memory keeps nothing across restarts)"`
	DBPath         string `long:"db-path" env:"DB_PATH" default:"./data/mirror.db" description:"SQLite database file"`
	BadgerDir      string `long:"badger-dir" env:"BADGER_DIR" default:"./data/badger" description:"Badger data directory"`

	// Pipeline configuration
	RunConfigPath     string `long:"run-config" env:"RUN_CONFIG" default:"./mirror.yml" description:"Run configuration file (feeds, patterns, batching)"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"900" description:"Pipeline trigger interval in seconds (0 disables)"`
	FeedTimeout       int    `long:"feed-timeout" env:"FEED_TIMEOUT" default:"15" description:"Feed request timeout in seconds"`
	PageTimeout       int    `long:"page-timeout" env:"PAGE_TIMEOUT" default:"30" description:"Page request timeout in seconds"`
	MaxContentBytes   int64  `long:"max-content-bytes" env:"MAX_CONTENT_BYTES" default:"5242880" description:"Maximum decoded page size"`
	RetryAttempts     int    `long:"retry-attempts" env:"RETRY_ATTEMPTS" default:"3" description:"Attempts per outbound call"`
	RetryBaseDelay    int    `long:"retry-base-delay" env:"RETRY_BASE_DELAY_MS" default:"1000" description:"Initial backoff delay in milliseconds"`

	// Content store configuration
	StoreAPIURL       string `long:"store-api" env:"STORE_API_URL" default:"https://api.github.com" description:"Content store API base URL"`
	StoreOwner        string `long:"store-owner" env:"STORE_OWNER" description:"Content store repository owner" required:"true"`
	StoreRepo         string `long:"store-repo" env:"STORE_REPO" description:"Content store repository name" required:"true"`
	StoreToken        string `long:"store-token" env:"STORE_TOKEN" description:"Content store access token" required:"true"`
	StoreDir          string `long:"store-dir" env:"STORE_DIR" default:"articles" description:"Directory for mirrored documents"`
	StoreFallbackRef  string `long:"store-fallback-branch" env:"STORE_FALLBACK_BRANCH" default:"main" description:"Branch used when the default branch cannot be resolved"`
	StoreBranchTTL    int    `long:"store-branch-ttl" env:"STORE_BRANCH_TTL" default:"3600" description:"Default branch cache lifetime in seconds"`
	StoreCustomDomain string `long:"custom-domain" env:"CUSTOM_DOMAIN" description:"Public domain serving mirrored documents (optional)"`

	// Notification configuration
	EmailProvider string  `long:"email-provider" env:"EMAIL_PROVIDER" choice:"" choice:"resend" choice:"sendgrid" description:"Transactional email provider (empty disables email)"`
	EmailAPIKey   string  `long:"email-api-key" env:"EMAIL_API_KEY" description:"Transactional email API key"`
	EmailAPIURL   string  `long:"email-api-url" env:"EMAIL_API_URL" description:"Override provider endpoint"`
	EmailFrom     string  `long:"email-from" env:"EMAIL_FROM" description:"Sender address"`
	EmailReplyTo  string  `long:"email-reply-to" env:"EMAIL_REPLY_TO" description:"Reply-to address (optional)"`
	EmailRate     float64 `long:"email-rate" env:"EMAIL_RATE" default:"2" description:"Maximum email requests per second"`

	// HTTP configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Feed Mirror/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/Sao_Paulo)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses args (os.Args[1:] when nil) plus the environment.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := fromRaw(raw)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func fromRaw(raw rawCfg) *Cfg {
	return &Cfg{
		StorageBackend:    raw.StorageBackend,
		DBPath:            raw.DBPath,
		BadgerDir:         raw.BadgerDir,
		RunConfigPath:     raw.RunConfigPath,
		SchedulerInterval: raw.SchedulerInterval,
		FeedTimeout:       time.Duration(raw.FeedTimeout) * time.Second,
		PageTimeout:       time.Duration(raw.PageTimeout) * time.Second,
		MaxContentBytes:   raw.MaxContentBytes,
		RetryAttempts:     raw.RetryAttempts,
		RetryBaseDelay:    time.Duration(raw.RetryBaseDelay) * time.Millisecond,
		StoreAPIURL:       strings.TrimRight(raw.StoreAPIURL, "/"),
		StoreOwner:        raw.StoreOwner,
		StoreRepo:         raw.StoreRepo,
		StoreToken:        raw.StoreToken,
		StoreDir:          strings.Trim(raw.StoreDir, "/"),
		StoreFallbackRef:  raw.StoreFallbackRef,
		StoreBranchTTL:    time.Duration(raw.StoreBranchTTL) * time.Second,
		StoreCustomDomain: raw.StoreCustomDomain,
		EmailProvider:     raw.EmailProvider,
		EmailAPIKey:       raw.EmailAPIKey,
		EmailAPIURL:       raw.EmailAPIURL,
		EmailFrom:         raw.EmailFrom,
		EmailReplyTo:      raw.EmailReplyTo,
		EmailRate:         raw.EmailRate,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}
}

func validate(cfg *Cfg) error {
	nonNegative := map[string]int64{
		"scheduler interval": int64(cfg.SchedulerInterval),
		"max content bytes":  cfg.MaxContentBytes,
		"retry attempts":     int64(cfg.RetryAttempts),
	}
	for name, value := range nonNegative {
		if value < 0 {
			return fmt.Errorf("%s must be non-negative", name)
		}
	}

	if cfg.FeedTimeout <= 0 || cfg.PageTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	if cfg.EmailProvider != "" && (cfg.EmailAPIKey == "" || cfg.EmailFrom == "") {
		return fmt.Errorf("email provider %q requires an API key and a sender address", cfg.EmailProvider)
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
