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

package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"mortgage-ledger-go/internal/counter"
	"mortgage-ledger-go/internal/database"
	"mortgage-ledger-go/internal/documents"
	"mortgage-ledger-go/internal/ledger"
	"mortgage-ledger-go/internal/models"
	"mortgage-ledger-go/internal/notify"
	"mortgage-ledger-go/internal/offer"
	"mortgage-ledger-go/internal/pipeline"
	"mortgage-ledger-go/internal/redisstore"
	"mortgage-ledger-go/internal/store"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	Store      store.TableStore
	Ids        *counter.Allocator
	Repository *ledger.Repository
	Engine     *offer.Engine

	closers []func()
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the configured table store and builds the ledger on
// top of it. Tables are created if missing.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	table, err := OpenTableStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ids := counter.NewAllocator(table, counter.ApplicationCounter, counter.Policy{
		MaxAttempts:     cfg.Counter.MaxAttempts,
		InitialInterval: cfg.Counter.InitialBackoff,
		MaxInterval:     cfg.Counter.MaxBackoff,
	}, counter.Strategy(cfg.Counter.Strategy))

	services := &Services{
		Store:      table,
		Ids:        ids,
		Repository: ledger.NewRepository(table, ids),
		Engine:     offer.NewEngine(),
		closers:    []func(){table.Close},
	}

	if err := services.EnsureTables(ctx); err != nil {
		services.Close()
		return nil, err
	}
	return services, nil
}

// OpenTableStore connects to the backend named by STORE_BACKEND.
func OpenTableStore(ctx context.Context, cfg *models.Config) (store.TableStore, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		dbService, err := database.NewService(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return dbService, nil
	case "redis":
		redisStore, err := redisstore.NewStore(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return redisStore, nil
	case "memory":
		zap.L().Warn("Using in-memory table store; data is lost on exit")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

func (cs *Services) EnsureTables(ctx context.Context) error {
	if err := cs.Ids.EnsureTable(ctx); err != nil {
		return fmt.Errorf("unable to create %s: %w", counter.Table, err)
	}
	return cs.Repository.EnsureTables(ctx)
}

// InitializePipeline builds the batch pipeline with the configured document
// store and notifier.
func (cs *Services) InitializePipeline(ctx context.Context, cfg *models.Config) (*pipeline.Pipeline, error) {
	blobs, err := cs.openBlobStore(ctx, cfg.Documents)
	if err != nil {
		return nil, err
	}

	notifier, err := OpenNotifier(ctx, cfg.Notifier)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Config{
		Applications: cs.Repository,
		Offers:       cs.Engine,
		Documents:    documents.NewPDFGenerator(blobs),
		Notifier:     notifier,
		Links:        notify.NewOfferLinks(cfg.Pipeline.OfferBaseURL, cfg.Pipeline.OfferLinkTTL),
	}), nil
}

func (cs *Services) openBlobStore(ctx context.Context, cfg models.DocumentsConfig) (documents.BlobStore, error) {
	switch cfg.Backend {
	case "gcs":
		gcs, err := documents.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentials)
		if err != nil {
			return nil, err
		}
		cs.closers = append(cs.closers, gcs.Close)
		return gcs, nil
	case "local":
		return documents.NewLocalStore(cfg.Dir, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported document store %q", cfg.Backend)
	}
}

// OpenNotifier builds the notifier named by NOTIFIER.
func OpenNotifier(ctx context.Context, cfg models.NotifierConfig) (notify.Notifier, error) {
	switch cfg.Mode {
	case "ses":
		return notify.NewSESNotifier(ctx, cfg.AWSRegion, cfg.From)
	case "webhook":
		return notify.NewWebhookNotifier(cfg.WebhookURL, cfg.From)
	case "log":
		return notify.NewLogNotifier(cfg.From), nil
	default:
		return nil, fmt.Errorf("unsupported notifier %q", cfg.Mode)
	}
}

func (cs *Services) Close() {
	for i := len(cs.closers) - 1; i >= 0; i-- {
		cs.closers[i]()
	}
	cs.closers = nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
