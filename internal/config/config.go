/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mortgage-ledger-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	initialBackoff, err := getEnvDuration("COUNTER_INITIAL_BACKOFF", 10*time.Millisecond)
	if err != nil {
		return nil, err
	}

	maxBackoff, err := getEnvDuration("COUNTER_MAX_BACKOFF", time.Second)
	if err != nil {
		return nil, err
	}

	runTimeout, err := getEnvDuration("JOB_RUN_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	// Zero waits for running jobs without a deadline.
	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	if shutdownTimeout < 0 {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT cannot be negative: %s", shutdownTimeout)
	}

	offerLinkTTL, err := getEnvDuration("OFFER_LINK_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Store: models.StoreConfig{
			Backend: strings.ToLower(getEnvString("STORE_BACKEND", "sqlite")),
		},
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "mortgages.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Redis: models.RedisConfig{
			Addr:      getEnvString("REDIS_ADDR", "localhost:6379"),
			Password:  getEnvString("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnvString("REDIS_KEY_PREFIX", "mortgage"),
		},
		Counter: models.CounterConfig{
			Strategy:       strings.ToLower(getEnvString("COUNTER_STRATEGY", "auto")),
			MaxAttempts:    getEnvInt("COUNTER_MAX_ATTEMPTS", 50),
			InitialBackoff: initialBackoff,
			MaxBackoff:     maxBackoff,
		},
		Pipeline: models.PipelineConfig{
			NightlySchedule: getEnvString("NIGHTLY_SCHEDULE", "0 0 23 * * *"),
			MorningSchedule: getEnvString("MORNING_SCHEDULE", "0 0 9 * * *"),
			RunTimeout:      runTimeout,
			ShutdownTimeout: shutdownTimeout,
			OfferBaseURL:    getEnvString("OFFER_BASE_URL", "https://buymyhouse.com/mortgage-offers"),
			OfferLinkTTL:    offerLinkTTL,
		},
		Notifier: models.NotifierConfig{
			Mode:       strings.ToLower(getEnvString("NOTIFIER", "log")),
			From:       getEnvString("NOTIFIER_FROM", "offers@buymyhouse.com"),
			AWSRegion:  getEnvString("AWS_REGION", "eu-west-1"),
			WebhookURL: getEnvString("NOTIFIER_WEBHOOK_URL", ""),
		},
		Documents: models.DocumentsConfig{
			Backend:        strings.ToLower(getEnvString("DOCUMENT_STORE", "local")),
			Dir:            getEnvString("DOCUMENT_DIR", "mortgage-offers"),
			BaseURL:        getEnvString("DOCUMENT_BASE_URL", ""),
			GCSBucket:      getEnvString("GCS_BUCKET", ""),
			GCSCredentials: getEnvString("GCS_CREDENTIALS_FILE", ""),
		},
		Server: models.ServerConfig{
			APIAddr:       getEnvString("API_LISTEN_ADDR", ":8080"),
			SchedulerAddr: getEnvString("SCHEDULER_LISTEN_ADDR", ":8081"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *models.Config) error {
	switch cfg.Store.Backend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q (expected sqlite, redis or memory)", cfg.Store.Backend)
	}
	switch cfg.Counter.Strategy {
	case "auto", "cas":
	default:
		return fmt.Errorf("invalid COUNTER_STRATEGY %q (expected auto or cas)", cfg.Counter.Strategy)
	}
	if cfg.Counter.MaxAttempts <= 0 {
		return fmt.Errorf("COUNTER_MAX_ATTEMPTS must be positive, got %d", cfg.Counter.MaxAttempts)
	}
	switch cfg.Notifier.Mode {
	case "log", "ses":
	case "webhook":
		if cfg.Notifier.WebhookURL == "" {
			return fmt.Errorf("NOTIFIER_WEBHOOK_URL is required when NOTIFIER=webhook")
		}
	default:
		return fmt.Errorf("invalid NOTIFIER %q (expected log, ses or webhook)", cfg.Notifier.Mode)
	}
	switch cfg.Documents.Backend {
	case "local":
	case "gcs":
		if cfg.Documents.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when DOCUMENT_STORE=gcs")
		}
	default:
		return fmt.Errorf("invalid DOCUMENT_STORE %q (expected local or gcs)", cfg.Documents.Backend)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
