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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"mortgage-ledger-go/internal/metrics"
	"mortgage-ledger-go/internal/models"
	"mortgage-ledger-go/internal/store"

	"go.uber.org/zap"
)

const ApplicationsTable = "MortgageApplications"

// rowKeyBatch caps the number of row keys per cross-partition lookup.
const rowKeyBatch = 500

var (
	ErrDuplicateApplication = errors.New("application already exists")
	ErrApplicationNotFound  = errors.New("application not found")
	ErrStateMismatch        = errors.New("application is not in the expected state")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrInvalidState         = errors.New("invalid application state")
	ErrInvalidApplication   = errors.New("invalid application")
	// ErrIncomeNotRecorded means the application was stored but its income
	// snapshot was not.
	ErrIncomeNotRecorded = errors.New("applicant income not recorded")
	// ErrConcurrentTransition means another writer moved the application first.
	ErrConcurrentTransition = errors.New("concurrent state transition")
)

// Mutation adjusts an application while it is being moved.
type Mutation func(*models.MortgageApplication)

// WithOffer copies the offer's document reference and approved amount onto
// the application.
func WithOffer(offer models.MortgageOffer) Mutation {
	return func(app *models.MortgageApplication) {
		app.OfferDocumentRef = offer.DocumentRef
		app.ApprovedAmount = offer.ApprovedAmount
	}
}

// ApplicationStore keeps applications partitioned by state. An application
// moves between partitions by writing the destination copy with a higher
// revision and then deleting the source copy; readers resolve the rare
// duplicate left by an interrupted move by keeping the highest revision.
type ApplicationStore struct {
	table store.TableStore
	locks *keyedMutex
	now   func() time.Time
}

func NewApplicationStore(table store.TableStore) *ApplicationStore {
	return &ApplicationStore{
		table: table,
		locks: newKeyedMutex(),
		now:   time.Now,
	}
}

func (s *ApplicationStore) EnsureTable(ctx context.Context) error {
	return s.table.CreateTableIfNotExists(ctx, ApplicationsTable)
}

// Insert adds a new application to the partition of its current state.
func (s *ApplicationStore) Insert(ctx context.Context, app *models.MortgageApplication) error {
	if !app.State.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, app.State)
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = s.now().UTC()
	}

	if _, err := s.table.AddEntity(ctx, ApplicationsTable, applicationToEntity(*app)); err != nil {
		if errors.Is(err, store.ErrEntityExists) {
			return fmt.Errorf("%w: id %d in %s", ErrDuplicateApplication, app.Id, app.State)
		}
		return fmt.Errorf("unable to insert application %d: %w", app.Id, err)
	}

	zap.L().Info("Application stored",
		zap.Int64("application_id", app.Id),
		zap.String("state", app.State.String()))
	return nil
}

// FindById returns the authoritative copy of an application, or nil when no
// partition holds it.
func (s *ApplicationStore) FindById(ctx context.Context, id int64) (*models.MortgageApplication, error) {
	copies, err := s.copiesOf(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(copies) == 0 {
		zap.L().Debug("Application not found", zap.Int64("application_id", id))
		return nil, nil
	}
	app := authoritative(copies)
	return &app, nil
}

// ScanPartition lists the applications currently in state, ordered by id.
// Copies superseded by a newer revision in another partition are skipped.
func (s *ApplicationStore) ScanPartition(ctx context.Context, state models.ApplicationState) ([]models.MortgageApplication, error) {
	if !state.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, state)
	}

	entities, err := s.table.QueryEntities(ctx, ApplicationsTable, store.Filter{PartitionKey: state.String()})
	if err != nil {
		return nil, fmt.Errorf("unable to scan %s: %w", state, err)
	}
	if len(entities) == 0 {
		return nil, nil
	}

	apps := make([]models.MortgageApplication, 0, len(entities))
	rowKeys := make([]string, 0, len(entities))
	for _, entity := range entities {
		app, err := entityToApplication(entity)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
		rowKeys = append(rowKeys, entity.RowKey)
	}

	latest, err := s.latestRevisions(ctx, rowKeys)
	if err != nil {
		return nil, err
	}

	current := apps[:0]
	for _, app := range apps {
		if app.Revision < latest[app.Id] {
			zap.L().Warn("Skipping superseded application copy",
				zap.Int64("application_id", app.Id),
				zap.String("state", app.State.String()),
				zap.Int64("revision", app.Revision),
				zap.Int64("latest_revision", latest[app.Id]))
			continue
		}
		current = append(current, app)
	}

	sort.Slice(current, func(i, j int) bool { return current[i].Id < current[j].Id })
	return current, nil
}

// Move transitions an application from one state to another. It fails with
// ErrStateMismatch when the application is not in from, and with
// ErrConcurrentTransition when another writer already produced the destination
// copy. A crash between the two writes leaves a duplicate, never a loss.
func (s *ApplicationStore) Move(ctx context.Context, id int64, from, to models.ApplicationState, mutations ...Mutation) (*models.MortgageApplication, error) {
	if !from.IsValid() || !to.IsValid() {
		return nil, fmt.Errorf("%w: %q -> %q", ErrInvalidState, from, to)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	copies, err := s.copiesOf(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(copies) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrApplicationNotFound, id)
	}
	current := authoritative(copies)
	if current.State != from {
		return nil, fmt.Errorf("%w: application %d is %s, expected %s", ErrStateMismatch, id, current.State, from)
	}

	next := current
	next.State = to
	next.Revision = current.Revision + 1
	next.UpdatedAt = s.now().UTC()
	for _, mutate := range mutations {
		mutate(&next)
	}

	if _, err := s.table.AddEntity(ctx, ApplicationsTable, applicationToEntity(next)); err != nil {
		if errors.Is(err, store.ErrEntityExists) {
			return nil, fmt.Errorf("%w: application %d already has a %s copy", ErrConcurrentTransition, id, to)
		}
		return nil, fmt.Errorf("unable to write application %d to %s: %w", id, to, err)
	}

	if err := s.table.DeleteEntity(ctx, ApplicationsTable, from.String(), rowKey(id)); err != nil {
		if !errors.Is(err, store.ErrEntityNotFound) {
			// The destination copy is authoritative; reconciliation removes the leftover.
			zap.L().Error("Failed to remove source copy after move",
				zap.Int64("application_id", id),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
				zap.Error(err))
		}
	}

	metrics.StateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	zap.L().Info("Application moved",
		zap.Int64("application_id", id),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int64("revision", next.Revision))
	return &next, nil
}

// ReconcileDuplicates deletes every copy superseded by a higher revision and
// returns how many were removed.
func (s *ApplicationStore) ReconcileDuplicates(ctx context.Context) (int, error) {
	entities, err := s.table.QueryEntities(ctx, ApplicationsTable, store.Filter{})
	if err != nil {
		return 0, fmt.Errorf("unable to scan applications: %w", err)
	}

	byId := make(map[int64][]models.MortgageApplication)
	for _, entity := range entities {
		app, err := entityToApplication(entity)
		if err != nil {
			return 0, err
		}
		byId[app.Id] = append(byId[app.Id], app)
	}

	removed := 0
	for id, copies := range byId {
		if len(copies) < 2 {
			continue
		}

		unlock := s.locks.Lock(id)
		keep := authoritative(copies)
		for _, stale := range copies {
			if stale.State == keep.State {
				continue
			}
			err := s.table.DeleteEntity(ctx, ApplicationsTable, stale.State.String(), rowKey(id))
			if err != nil && !errors.Is(err, store.ErrEntityNotFound) {
				unlock()
				return removed, fmt.Errorf("unable to remove stale copy of %d in %s: %w", id, stale.State, err)
			}
			removed++
			metrics.DuplicatesReconciled.Inc()
			zap.L().Warn("Removed stale application copy",
				zap.Int64("application_id", id),
				zap.String("stale_state", stale.State.String()),
				zap.String("current_state", keep.State.String()))
		}
		unlock()
	}
	return removed, nil
}

func (s *ApplicationStore) copiesOf(ctx context.Context, id int64) ([]models.MortgageApplication, error) {
	entities, err := s.table.QueryEntities(ctx, ApplicationsTable, store.Filter{RowKeys: []string{rowKey(id)}})
	if err != nil {
		return nil, fmt.Errorf("unable to look up application %d: %w", id, err)
	}

	copies := make([]models.MortgageApplication, 0, len(entities))
	for _, entity := range entities {
		app, err := entityToApplication(entity)
		if err != nil {
			return nil, err
		}
		copies = append(copies, app)
	}
	return copies, nil
}

func (s *ApplicationStore) latestRevisions(ctx context.Context, rowKeys []string) (map[int64]int64, error) {
	latest := make(map[int64]int64, len(rowKeys))
	for start := 0; start < len(rowKeys); start += rowKeyBatch {
		end := min(start+rowKeyBatch, len(rowKeys))
		entities, err := s.table.QueryEntities(ctx, ApplicationsTable, store.Filter{RowKeys: rowKeys[start:end]})
		if err != nil {
			return nil, fmt.Errorf("unable to resolve application revisions: %w", err)
		}
		for _, entity := range entities {
			app, err := entityToApplication(entity)
			if err != nil {
				return nil, err
			}
			if app.Revision > latest[app.Id] {
				latest[app.Id] = app.Revision
			}
		}
	}
	return latest, nil
}

// authoritative picks the highest revision; copies must not be empty.
func authoritative(copies []models.MortgageApplication) models.MortgageApplication {
	best := copies[0]
	for _, c := range copies[1:] {
		if c.Revision > best.Revision {
			best = c
		}
	}
	return best
}

// keyedMutex serializes writers per application id within this process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*refMutex)}
}

func (k *keyedMutex) Lock(id int64) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
