package ledger

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"mortgage-ledger-go/internal/counter"
	"mortgage-ledger-go/internal/database"
	"mortgage-ledger-go/internal/models"
	"mortgage-ledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, table store.TableStore) *Repository {
	t.Helper()
	ids := counter.NewAllocator(table, counter.ApplicationCounter, counter.DefaultPolicy(), counter.StrategyCAS)
	repo := NewRepository(table, ids)
	require.NoError(t, repo.EnsureTables(context.Background()))
	return repo
}

func sampleApplication(state models.ApplicationState, id int64) *models.MortgageApplication {
	return &models.MortgageApplication{
		Id:              id,
		ApplicantEmail:  "jane.doe@example.com",
		ApplicantName:   "Jane Doe",
		YearlyIncome:    decimal.RequireFromString("60000"),
		RequestedAmount: decimal.RequireFromString("200000.50"),
		PropertyId:      7,
		SubmittedAt:     time.Date(2026, 5, 31, 23, 59, 0, 0, time.UTC),
		State:           state,
	}
}

func sampleRequest() models.CreateApplicationRequest {
	return models.CreateApplicationRequest{
		ApplicantEmail:  "jane.doe@example.com",
		ApplicantName:   "Jane Doe",
		YearlyIncome:    decimal.NewFromInt(60000),
		RequestedAmount: decimal.NewFromInt(200000),
		PropertyId:      3,
	}
}

func TestInsertAndFindById(t *testing.T) {
	s := NewApplicationStore(store.NewMemoryStore())
	ctx := context.Background()

	app := sampleApplication(models.StateAwaitingReview, 1)
	require.NoError(t, s.Insert(ctx, app))

	found, err := s.FindById(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.StateAwaitingReview, found.State)
	assert.Equal(t, "Jane Doe", found.ApplicantName)
	assert.True(t, app.RequestedAmount.Equal(found.RequestedAmount))
	assert.True(t, app.SubmittedAt.Equal(found.SubmittedAt))
	assert.Equal(t, int64(7), found.PropertyId)

	err = s.Insert(ctx, sampleApplication(models.StateAwaitingReview, 1))
	assert.ErrorIs(t, err, ErrDuplicateApplication)

	missing, err := s.FindById(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = s.Insert(ctx, sampleApplication("Pending", 2))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMoveChangesPartition(t *testing.T) {
	s := NewApplicationStore(store.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, sampleApplication(models.StateAwaitingReview, 1)))
	require.NoError(t, s.Insert(ctx, sampleApplication(models.StateAwaitingReview, 2)))

	moved, err := s.Move(ctx, 1, models.StateAwaitingReview, models.StateUnderProcessing)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnderProcessing, moved.State)
	assert.Equal(t, int64(1), moved.Revision)

	awaiting, err := s.ScanPartition(ctx, models.StateAwaitingReview)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	assert.Equal(t, int64(2), awaiting[0].Id)

	processing, err := s.ScanPartition(ctx, models.StateUnderProcessing)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, int64(1), processing[0].Id)

	found, err := s.FindById(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnderProcessing, found.State)
}

func TestMoveAppliesMutations(t *testing.T) {
	s := NewApplicationStore(store.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, sampleApplication(models.StateUnderProcessing, 1)))

	offer := models.MortgageOffer{DocumentRef: "file://offers/1.pdf", ApprovedAmount: decimal.NewFromInt(200000)}
	_, err := s.Move(ctx, 1, models.StateUnderProcessing, models.StateAccepted, WithOffer(offer))
	require.NoError(t, err)

	found, err := s.FindById(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "file://offers/1.pdf", found.OfferDocumentRef)
	assert.True(t, decimal.NewFromInt(200000).Equal(found.ApprovedAmount))
}

func TestMoveRejectsWrongSourceState(t *testing.T) {
	s := NewApplicationStore(store.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, sampleApplication(models.StateAwaitingReview, 1)))

	_, err := s.Move(ctx, 1, models.StateAccepted, models.StateOfferDelivered)
	assert.ErrorIs(t, err, ErrStateMismatch)

	_, err = s.Move(ctx, 42, models.StateAwaitingReview, models.StateUnderProcessing)
	assert.ErrorIs(t, err, ErrApplicationNotFound)

	_, err = s.Move(ctx, 1, models.StateAwaitingReview, "Nowhere")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConcurrentMovesOnlyOneWins(t *testing.T) {
	s := NewApplicationStore(store.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, sampleApplication(models.StateAwaitingReview, 1)))

	const movers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < movers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Move(ctx, 1, models.StateAwaitingReview, models.StateUnderProcessing)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrStateMismatch)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMoveDetectsForeignDestinationCopy(t *testing.T) {
	table := store.NewMemoryStore()
	s := NewApplicationStore(table)
	ctx := context.Background()

	app := sampleApplication(models.StateAwaitingReview, 1)
	app.Revision = 3
	require.NoError(t, s.Insert(ctx, app))

	// Another process already wrote the destination copy but at an older
	// revision, so the source copy is still authoritative here.
	foreign := sampleApplication(models.StateUnderProcessing, 1)
	foreign.Revision = 1
	require.NoError(t, s.Insert(ctx, foreign))

	_, err := s.Move(ctx, 1, models.StateAwaitingReview, models.StateUnderProcessing)
	assert.ErrorIs(t, err, ErrConcurrentTransition)
}

// flakyDeleteStore fails the next delete, simulating a crash between the two
// writes of a move.
type flakyDeleteStore struct {
	*store.MemoryStore
	failNext bool
}

func (f *flakyDeleteStore) DeleteEntity(ctx context.Context, table, partitionKey, rowKey string) error {
	if f.failNext {
		f.failNext = false
		return errors.New("connection reset")
	}
	return f.MemoryStore.DeleteEntity(ctx, table, partitionKey, rowKey)
}

func TestInterruptedMoveLeavesRecoverableDuplicate(t *testing.T) {
	table := &flakyDeleteStore{MemoryStore: store.NewMemoryStore()}
	s := NewApplicationStore(table)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, sampleApplication(models.StateAwaitingReview, 1)))

	table.failNext = true
	moved, err := s.Move(ctx, 1, models.StateAwaitingReview, models.StateUnderProcessing)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnderProcessing, moved.State)

	// Both copies exist physically.
	raw, err := table.QueryEntities(ctx, ApplicationsTable, store.Filter{RowKeys: []string{"1"}})
	require.NoError(t, err)
	assert.Len(t, raw, 2)

	// Readers see only the newer copy.
	awaiting, err := s.ScanPartition(ctx, models.StateAwaitingReview)
	require.NoError(t, err)
	assert.Empty(t, awaiting)

	found, err := s.FindById(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnderProcessing, found.State)

	// The stale copy cannot be moved again.
	_, err = s.Move(ctx, 1, models.StateAwaitingReview, models.StateUnderProcessing)
	assert.ErrorIs(t, err, ErrStateMismatch)

	removed, err := s.ReconcileDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	raw, err = table.QueryEntities(ctx, ApplicationsTable, store.Filter{RowKeys: []string{"1"}})
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, models.StateUnderProcessing.String(), raw[0].PartitionKey)

	removed, err = s.ReconcileDuplicates(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestScanPartitionOrdersById(t *testing.T) {
	s := NewApplicationStore(store.NewMemoryStore())
	ctx := context.Background()
	for _, id := range []int64{10, 2, 33, 1} {
		require.NoError(t, s.Insert(ctx, sampleApplication(models.StateAccepted, id)))
	}

	apps, err := s.ScanPartition(ctx, models.StateAccepted)
	require.NoError(t, err)
	var ids []int64
	for _, app := range apps {
		ids = append(ids, app.Id)
	}
	assert.Equal(t, []int64{1, 2, 10, 33}, ids)

	empty, err := s.ScanPartition(ctx, models.StateDeclined)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = s.ScanPartition(ctx, "Bogus")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSubmitApplication(t *testing.T) {
	repo := newTestRepository(t, store.NewMemoryStore())
	fixed := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	ctx := context.Background()

	first, err := repo.SubmitApplication(ctx, sampleRequest())
	require.NoError(t, err)
	second, err := repo.SubmitApplication(ctx, sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Id)
	assert.Equal(t, int64(2), second.Id)
	assert.Equal(t, models.StateAwaitingReview, first.State)
	assert.True(t, fixed.Equal(first.SubmittedAt))

	awaiting, err := repo.ListByState(ctx, models.StateAwaitingReview)
	require.NoError(t, err)
	assert.Len(t, awaiting, 2)

	incomes, err := repo.IncomeForMonth(ctx, "2026-02")
	require.NoError(t, err)
	require.Len(t, incomes, 2)
	assert.Equal(t, int64(1), incomes[0].ApplicationId)
	assert.True(t, decimal.NewFromInt(60000).Equal(incomes[0].YearlyIncome))

	_, err = repo.IncomeForMonth(ctx, "February")
	assert.Error(t, err)
}

func TestSubmitApplication_Validation(t *testing.T) {
	repo := newTestRepository(t, store.NewMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.CreateApplicationRequest)
	}{
		{"bad email", func(r *models.CreateApplicationRequest) { r.ApplicantEmail = "not-an-email" }},
		{"short name", func(r *models.CreateApplicationRequest) { r.ApplicantName = "J" }},
		{"negative income", func(r *models.CreateApplicationRequest) { r.YearlyIncome = decimal.NewFromInt(-1) }},
		{"negative amount", func(r *models.CreateApplicationRequest) { r.RequestedAmount = decimal.NewFromInt(-5) }},
		{"missing property", func(r *models.CreateApplicationRequest) { r.PropertyId = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := sampleRequest()
			tt.mutate(&req)
			_, err := repo.SubmitApplication(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidApplication)
		})
	}

	// Nothing consumed an id.
	app, err := repo.SubmitApplication(ctx, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(1), app.Id)
}

func TestSubmitApplication_IncomeMonthUsesUTC(t *testing.T) {
	repo := newTestRepository(t, store.NewMemoryStore())
	ctx := context.Background()

	// 23:30 on Jan 31 in UTC-5 is already February in UTC.
	local := time.Date(2026, 1, 31, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	app, err := repo.SaveNewApplication(ctx, &models.MortgageApplication{
		ApplicantEmail: "a@example.com",
		ApplicantName:  "Al",
		PropertyId:     1,
		SubmittedAt:    local,
	})
	require.NoError(t, err)
	require.NoError(t, repo.SaveApplicantIncome(ctx, app))

	incomes, err := repo.IncomeForMonth(ctx, "2026-02")
	require.NoError(t, err)
	assert.Len(t, incomes, 1)
}

// incomeFailingStore rejects every write to the income table.
type incomeFailingStore struct {
	*store.MemoryStore
}

func (f incomeFailingStore) UpsertEntity(ctx context.Context, table string, entity store.Entity) (store.Entity, error) {
	if table == IncomeTable {
		return store.Entity{}, errors.New("disk full")
	}
	return f.MemoryStore.UpsertEntity(ctx, table, entity)
}

func TestSubmitApplication_IncomeFailureIsReported(t *testing.T) {
	repo := newTestRepository(t, incomeFailingStore{store.NewMemoryStore()})
	ctx := context.Background()

	app, err := repo.SubmitApplication(ctx, sampleRequest())
	require.ErrorIs(t, err, ErrIncomeNotRecorded)
	require.NotNil(t, app)
	assert.Contains(t, err.Error(), "disk full")

	found, err := repo.GetApplicationById(ctx, app.Id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.StateAwaitingReview, found.State)
}

func TestTransitionState(t *testing.T) {
	repo := newTestRepository(t, store.NewMemoryStore())
	ctx := context.Background()
	app, err := repo.SubmitApplication(ctx, sampleRequest())
	require.NoError(t, err)

	_, err = repo.TransitionState(ctx, app.Id, models.StateAccepted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	moved, err := repo.TransitionState(ctx, app.Id, models.StateUnderProcessing)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnderProcessing, moved.State)

	moved, err = repo.TransitionState(ctx, app.Id, models.StateDeclined)
	require.NoError(t, err)
	assert.Equal(t, models.StateDeclined, moved.State)

	_, err = repo.TransitionState(ctx, app.Id, models.StateOfferDelivered)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = repo.TransitionState(ctx, 404, models.StateUnderProcessing)
	assert.ErrorIs(t, err, ErrApplicationNotFound)

	_, err = repo.TransitionState(ctx, app.Id, "Archived")
	assert.ErrorIs(t, err, ErrInvalidState)

	found, err := repo.GetApplicationById(ctx, app.Id)
	require.NoError(t, err)
	assert.Equal(t, models.StateDeclined, found.State)
	assert.Equal(t, int64(2), found.Revision)
}

func TestRepositoryOnSQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	tableService := database.NewTableService(db)
	require.NoError(t, tableService.InitSchema(context.Background()))
	defer tableService.Close()

	repo := newTestRepository(t, tableService)
	ctx := context.Background()

	app, err := repo.SubmitApplication(ctx, sampleRequest())
	require.NoError(t, err)
	_, err = repo.TransitionState(ctx, app.Id, models.StateUnderProcessing)
	require.NoError(t, err)

	awaiting, err := repo.ListByState(ctx, models.StateAwaitingReview)
	require.NoError(t, err)
	assert.Empty(t, awaiting)

	processing, err := repo.ListByState(ctx, models.StateUnderProcessing)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, app.Id, processing[0].Id)
	assert.True(t, decimal.NewFromInt(200000).Equal(processing[0].RequestedAmount))
}
