package offer

import (
	"testing"
	"time"

	"mortgage-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func application(income, requested string) models.MortgageApplication {
	return models.MortgageApplication{
		Id:              1,
		YearlyIncome:    d(income),
		RequestedAmount: d(requested),
	}
}

func TestIsApproved(t *testing.T) {
	tests := []struct {
		name      string
		income    string
		requested string
		want      bool
	}{
		{"typical approval", "60000", "200000", true},
		{"income below minimum", "20000", "50000", false},
		{"income exactly minimum", "25000", "100000", true},
		{"income just below minimum", "24999.99", "1000", false},
		{"request exactly at multiple", "60000", "270000", true},
		{"request just above multiple", "60000", "270000.01", false},
		{"zero request", "30000", "0", true},
		{"zero income", "0", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsApproved(application(tt.income, tt.requested)))
		})
	}
}

func TestInterestRateTiers(t *testing.T) {
	tests := []struct {
		ratio string
		want  string
	}{
		{"0", "3.0"},
		{"2.5", "3.0"},
		{"3.0", "3.0"},
		{"3.0001", "4.5"},
		{"3.5", "4.5"},
		{"3.5001", "5.0"},
		{"4.0", "5.0"},
		{"4.0001", "5.5"},
		{"4.5", "5.5"},
	}

	for _, tt := range tests {
		t.Run(tt.ratio, func(t *testing.T) {
			got := InterestRate(d(tt.ratio))
			assert.True(t, d(tt.want).Equal(got), "ratio %s: want %s, got %s", tt.ratio, tt.want, got)
		})
	}
}

func TestInterestRateIsMonotonic(t *testing.T) {
	previous := InterestRate(decimal.Zero)
	for ratio := decimal.Zero; ratio.LessThanOrEqual(d("4.5")); ratio = ratio.Add(d("0.05")) {
		current := InterestRate(ratio)
		require.True(t, current.GreaterThanOrEqual(previous), "rate decreased at ratio %s", ratio)
		previous = current
	}
}

func TestMonthlyPayment(t *testing.T) {
	tests := []struct {
		principal string
		rate      string
		want      string
	}{
		{"200000", "3.0", "948.42"},
		{"200000", "4.5", "1111.66"},
		{"200000", "5.0", "1169.18"},
		{"200000", "5.5", "1228.17"},
		{"112500", "5.5", "690.85"},
		{"270000", "5.5", "1658.04"},
		{"100000", "3.0", "474.21"},
		{"50000", "3.0", "237.11"},
	}

	for _, tt := range tests {
		t.Run(tt.principal+"@"+tt.rate, func(t *testing.T) {
			got := MonthlyPayment(d(tt.principal), d(tt.rate), TermYears)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestMonthlyPayment_ZeroRate(t *testing.T) {
	got := MonthlyPayment(d("300000"), decimal.Zero, TermYears)
	assert.Equal(t, "1000.00", got.StringFixed(2))
}

func TestGenerateOffer(t *testing.T) {
	created := time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC)
	engine := &Engine{
		now:   func() time.Time { return created },
		newId: func() string { return "offer-1" },
	}

	app := application("60000", "200000")
	app.Id = 17
	offer, err := engine.GenerateOffer(app)
	require.NoError(t, err)

	assert.Equal(t, "offer-1", offer.Id)
	assert.Equal(t, int64(17), offer.ApplicationId)
	assert.True(t, d("200000").Equal(offer.ApprovedAmount))
	assert.True(t, d("4.5").Equal(offer.InterestRate))
	assert.Equal(t, 25, offer.TermYears)
	assert.Equal(t, "1111.66", offer.MonthlyPayment.StringFixed(2))
	assert.Equal(t, created, offer.CreatedAt)
	assert.Equal(t, created.Add(14*24*time.Hour), offer.ExpiresAt)
	assert.Empty(t, offer.DocumentRef)
}

func TestGenerateOffer_AtMaximumMultiple(t *testing.T) {
	engine := NewEngine()

	offer, err := engine.GenerateOffer(application("60000", "270000"))
	require.NoError(t, err)
	assert.True(t, d("270000").Equal(offer.ApprovedAmount))
	assert.True(t, d("5.5").Equal(offer.InterestRate))
	assert.Equal(t, "1658.04", offer.MonthlyPayment.StringFixed(2))
	assert.NotEmpty(t, offer.Id)
}

func TestGenerateOffer_LowRatioGetsBaseRate(t *testing.T) {
	offer, err := NewEngine().GenerateOffer(application("100000", "100000"))
	require.NoError(t, err)
	assert.True(t, d("3.0").Equal(offer.InterestRate))
	assert.Equal(t, "474.21", offer.MonthlyPayment.StringFixed(2))
}

func TestGenerateOffer_FreshIdPerOffer(t *testing.T) {
	engine := NewEngine()
	app := application("60000", "200000")

	first, err := engine.GenerateOffer(app)
	require.NoError(t, err)
	second, err := engine.GenerateOffer(app)
	require.NoError(t, err)
	assert.NotEqual(t, first.Id, second.Id)
}

func TestGenerateOffer_RejectedApplication(t *testing.T) {
	_, err := NewEngine().GenerateOffer(application("20000", "50000"))
	assert.ErrorIs(t, err, ErrNotApproved)

	_, err = NewEngine().GenerateOffer(application("0", "0"))
	assert.ErrorIs(t, err, ErrNotApproved)
}
