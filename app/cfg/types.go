package cfg

import "time"

type Cfg struct {
	// Storage configuration
	StorageBackend string
	DBPath         string
	BadgerDir      string

	// Pipeline configuration
	RunConfigPath     string
	SchedulerInterval int
	FeedTimeout       time.Duration
	PageTimeout       time.Duration
	MaxContentBytes   int64
	RetryAttempts     int
	RetryBaseDelay    time.Duration

	// Content store configuration
	StoreAPIURL       string
	StoreOwner        string
	StoreRepo         string
	StoreToken        string
	StoreDir          string
	StoreFallbackRef  string
	StoreBranchTTL    time.Duration
	StoreCustomDomain string

	// Notification configuration
	EmailProvider string
	EmailAPIKey   string
	EmailAPIURL   string
	EmailFrom     string
	EmailReplyTo  string
	EmailRate     float64

	// HTTP configuration
	Port         string
	BaseUrl      string
	APIAccessKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
