package models

import "time"

// Config represents the application configuration
type Config struct {
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Counter   CounterConfig
	Pipeline  PipelineConfig
	Notifier  NotifierConfig
	Documents DocumentsConfig
	Server    ServerConfig
}

// StoreConfig selects the table store backend
type StoreConfig struct {
	Backend string // sqlite, redis or memory
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// CounterConfig controls id allocation
type CounterConfig struct {
	Strategy       string // auto or cas
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// PipelineConfig holds batch job settings
type PipelineConfig struct {
	NightlySchedule string
	MorningSchedule string
	RunTimeout      time.Duration
	ShutdownTimeout time.Duration
	OfferBaseURL    string
	OfferLinkTTL    time.Duration
}

// NotifierConfig selects how offer e-mails are delivered
type NotifierConfig struct {
	Mode       string // log, ses or webhook
	From       string
	AWSRegion  string
	WebhookURL string
}

// DocumentsConfig selects where offer documents are stored
type DocumentsConfig struct {
	Backend        string // local or gcs
	Dir            string
	BaseURL        string
	GCSBucket      string
	GCSCredentials string
}

// ServerConfig holds HTTP listen addresses
type ServerConfig struct {
	APIAddr       string
	SchedulerAddr string
}
