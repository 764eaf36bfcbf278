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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mortgage-ledger-go/internal/documents"
	"mortgage-ledger-go/internal/ledger"
	"mortgage-ledger-go/internal/metrics"
	"mortgage-ledger-go/internal/models"
	"mortgage-ledger-go/internal/notify"
	"mortgage-ledger-go/internal/offer"

	"go.uber.org/zap"
)

const (
	JobProcessApplications = "process-applications"
	JobSendOffers          = "send-offers"
)

// PlaceholderPrefix marks an accepted application whose offer document could
// not be produced.
const PlaceholderPrefix = "pending-document://"

var (
	ErrJobRunning = errors.New("job is already running")
	ErrUnknownJob = errors.New("unknown job")
)

// Applications is the part of the ledger the pipeline drives.
type Applications interface {
	ListByState(ctx context.Context, state models.ApplicationState) ([]models.MortgageApplication, error)
	Move(ctx context.Context, id int64, from, to models.ApplicationState, mutations ...ledger.Mutation) (*models.MortgageApplication, error)
	ReconcileDuplicates(ctx context.Context) (int, error)
}

// Offers computes offer terms for approved applications.
type Offers interface {
	GenerateOffer(app models.MortgageApplication) (models.MortgageOffer, error)
}

// Links produces the expiring offer URL sent to applicants.
type Links interface {
	Generate(applicationId int64) string
}

// Compile-time checks for the production collaborators.
var (
	_ Applications = (*ledger.Repository)(nil)
	_ Offers       = (*offer.Engine)(nil)
	_ Links        = (*notify.OfferLinks)(nil)
)

// Config contains the collaborators of a Pipeline.
type Config struct {
	Applications Applications
	Offers       Offers
	Documents    documents.Generator
	Notifier     notify.Notifier
	Links        Links
}

// Pipeline runs the nightly evaluation and morning delivery jobs. Each job
// processes its partition sequentially; a failing application is logged and
// counted without stopping the run.
type Pipeline struct {
	applications Applications
	offers       Offers
	documents    documents.Generator
	notifier     notify.Notifier
	links        Links

	processMu sync.Mutex
	sendMu    sync.Mutex
	now       func() time.Time
}

func New(cfg Config) *Pipeline {
	return &Pipeline{
		applications: cfg.Applications,
		offers:       cfg.Offers,
		documents:    cfg.Documents,
		notifier:     cfg.Notifier,
		links:        cfg.Links,
		now:          time.Now,
	}
}

// Run executes the named job.
func (p *Pipeline) Run(ctx context.Context, job string) (*models.BatchResult, error) {
	switch job {
	case JobProcessApplications:
		return p.ProcessApplications(ctx)
	case JobSendOffers:
		return p.SendOffers(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}
}

// ProcessApplications evaluates every application awaiting review, plus any
// left under processing by an interrupted run, and moves each to Accepted or
// Declined.
func (p *Pipeline) ProcessApplications(ctx context.Context) (*models.BatchResult, error) {
	if !p.processMu.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, JobProcessApplications)
	}
	defer p.processMu.Unlock()

	result := p.begin(JobProcessApplications)
	logger := runLogger(ctx, JobProcessApplications)

	reconciled, err := p.applications.ReconcileDuplicates(ctx)
	if err != nil {
		logger.Error("Duplicate reconciliation failed", zap.Error(err))
	}
	result.Reconciled = reconciled

	stranded, err := p.applications.ListByState(ctx, models.StateUnderProcessing)
	if err != nil {
		return p.finish(result, fmt.Errorf("unable to list %s applications: %w", models.StateUnderProcessing, err))
	}
	awaiting, err := p.applications.ListByState(ctx, models.StateAwaitingReview)
	if err != nil {
		return p.finish(result, fmt.Errorf("unable to list %s applications: %w", models.StateAwaitingReview, err))
	}

	if len(stranded) > 0 {
		logger.Warn("Resuming applications left under processing", zap.Int("count", len(stranded)))
	}
	logger.Info("Processing applications",
		zap.Int("awaiting_review", len(awaiting)),
		zap.Int("under_processing", len(stranded)),
		zap.Int("reconciled", reconciled))

	for _, app := range stranded {
		if err := ctx.Err(); err != nil {
			return p.finish(result, err)
		}
		p.evaluate(ctx, logger, app, result)
	}

	for _, app := range awaiting {
		if err := ctx.Err(); err != nil {
			return p.finish(result, err)
		}

		claimed, err := p.applications.Move(ctx, app.Id, models.StateAwaitingReview, models.StateUnderProcessing)
		if err != nil {
			if skippable(err) {
				logger.Info("Application already claimed, skipping",
					zap.Int64("application_id", app.Id), zap.Error(err))
				continue
			}
			result.Failed++
			metrics.JobApplications.WithLabelValues(JobProcessApplications, "failed").Inc()
			logger.Error("Failed to claim application",
				zap.Int64("application_id", app.Id), zap.Error(err))
			continue
		}
		p.evaluate(ctx, logger, *claimed, result)
	}

	return p.finish(result, nil)
}

func (p *Pipeline) evaluate(ctx context.Context, logger *zap.Logger, app models.MortgageApplication, result *models.BatchResult) {
	if err := p.decide(ctx, logger, app, result); err != nil {
		result.Failed++
		metrics.JobApplications.WithLabelValues(JobProcessApplications, "failed").Inc()
		logger.Error("Failed to process application",
			zap.Int64("application_id", app.Id), zap.Error(err))
	}
}

func (p *Pipeline) decide(ctx context.Context, logger *zap.Logger, app models.MortgageApplication, result *models.BatchResult) error {
	if !offer.IsApproved(app) {
		if _, err := p.applications.Move(ctx, app.Id, models.StateUnderProcessing, models.StateDeclined); err != nil {
			return fmt.Errorf("unable to decline application: %w", err)
		}
		result.Processed++
		result.Rejected++
		metrics.JobApplications.WithLabelValues(JobProcessApplications, "declined").Inc()
		logger.Info("Application declined",
			zap.Int64("application_id", app.Id),
			zap.String("yearly_income", app.YearlyIncome.String()),
			zap.String("requested_amount", app.RequestedAmount.String()))
		return nil
	}

	mortgageOffer, err := p.offers.GenerateOffer(app)
	if err != nil {
		return fmt.Errorf("unable to generate offer: %w", err)
	}

	ref, err := p.documents.CreateOfferDocument(ctx, mortgageOffer)
	if err != nil {
		ref = PlaceholderRef(app.Id)
		logger.Error("Offer document generation failed, using placeholder",
			zap.Int64("application_id", app.Id),
			zap.String("document_ref", ref),
			zap.Error(err))
	}
	mortgageOffer.DocumentRef = ref

	_, err = p.applications.Move(ctx, app.Id, models.StateUnderProcessing, models.StateAccepted, ledger.WithOffer(mortgageOffer))
	if err != nil {
		return fmt.Errorf("unable to accept application: %w", err)
	}

	result.Processed++
	result.Approved++
	metrics.JobApplications.WithLabelValues(JobProcessApplications, "accepted").Inc()
	logger.Info("Application accepted",
		zap.Int64("application_id", app.Id),
		zap.String("approved_amount", mortgageOffer.ApprovedAmount.String()),
		zap.String("interest_rate", mortgageOffer.InterestRate.String()),
		zap.String("monthly_payment", mortgageOffer.MonthlyPayment.String()),
		zap.String("document_ref", ref))
	return nil
}

// SendOffers e-mails an offer link to every accepted applicant and moves the
// application to OfferDelivered.
func (p *Pipeline) SendOffers(ctx context.Context) (*models.BatchResult, error) {
	if !p.sendMu.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, JobSendOffers)
	}
	defer p.sendMu.Unlock()

	result := p.begin(JobSendOffers)
	logger := runLogger(ctx, JobSendOffers)

	accepted, err := p.applications.ListByState(ctx, models.StateAccepted)
	if err != nil {
		return p.finish(result, fmt.Errorf("unable to list %s applications: %w", models.StateAccepted, err))
	}
	logger.Info("Sending offers", zap.Int("accepted", len(accepted)))

	for _, app := range accepted {
		if err := ctx.Err(); err != nil {
			return p.finish(result, err)
		}

		if err := p.deliver(ctx, logger, app); err != nil {
			if skippable(err) {
				logger.Info("Offer already delivered, skipping",
					zap.Int64("application_id", app.Id), zap.Error(err))
				continue
			}
			result.Failed++
			metrics.JobApplications.WithLabelValues(JobSendOffers, "failed").Inc()
			logger.Error("Failed to deliver offer",
				zap.Int64("application_id", app.Id),
				zap.String("email", app.ApplicantEmail),
				zap.Error(err))
			continue
		}

		result.Processed++
		result.Sent++
		metrics.JobApplications.WithLabelValues(JobSendOffers, "sent").Inc()
	}

	return p.finish(result, nil)
}

func (p *Pipeline) deliver(ctx context.Context, logger *zap.Logger, app models.MortgageApplication) error {
	url := p.links.Generate(app.Id)
	if err := p.notifier.SendOfferEmail(ctx, app.ApplicantEmail, app.ApplicantName, url); err != nil {
		return fmt.Errorf("unable to send offer e-mail: %w", err)
	}

	if _, err := p.applications.Move(ctx, app.Id, models.StateAccepted, models.StateOfferDelivered); err != nil {
		return err
	}

	logger.Info("Offer delivered",
		zap.Int64("application_id", app.Id),
		zap.String("email", app.ApplicantEmail))
	return nil
}

func (p *Pipeline) begin(job string) *models.BatchResult {
	return &models.BatchResult{Job: job, StartedAt: p.now().UTC()}
}

func (p *Pipeline) finish(result *models.BatchResult, err error) (*models.BatchResult, error) {
	result.Duration = p.now().Sub(result.StartedAt)

	status := "success"
	if err != nil {
		status = "error"
	} else if result.Failed > 0 {
		status = "partial"
	}
	metrics.JobRuns.WithLabelValues(result.Job, status).Inc()
	metrics.JobDuration.WithLabelValues(result.Job).Observe(result.Duration.Seconds())

	zap.L().Info("Job finished",
		zap.String("job", result.Job),
		zap.String("status", status),
		zap.Int("processed", result.Processed),
		zap.Int("approved", result.Approved),
		zap.Int("rejected", result.Rejected),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))
	return result, err
}

// PlaceholderRef is the document reference stored when rendering fails.
func PlaceholderRef(applicationId int64) string {
	return fmt.Sprintf("%s%d", PlaceholderPrefix, applicationId)
}

func skippable(err error) bool {
	return errors.Is(err, ledger.ErrStateMismatch) || errors.Is(err, ledger.ErrConcurrentTransition)
}

func runLogger(ctx context.Context, job string) *zap.Logger {
	logger := zap.L().With(zap.String("job", job))
	if run := models.GetJobRun(ctx); run != nil {
		logger = logger.With(zap.String("run_id", run.RunId), zap.String("trigger", run.Trigger))
	}
	return logger
}
