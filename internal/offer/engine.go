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

package offer

import (
	"errors"
	"fmt"
	"time"

	"mortgage-ledger-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	TermYears     = 25
	OfferValidity = 14 * 24 * time.Hour

	// powPrecision is the number of decimal places kept between the
	// multiplications of (1+r)^n.
	powPrecision = 28
)

var (
	MinimumYearlyIncome = decimal.NewFromInt(25000)
	MaxIncomeMultiple   = decimal.RequireFromString("4.5")
	BaseRate            = decimal.RequireFromString("3.0")

	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// rateTiers are checked top-down; the first ratio strictly above the
// threshold wins.
var rateTiers = []struct {
	above   decimal.Decimal
	premium decimal.Decimal
}{
	{decimal.RequireFromString("4.0"), decimal.RequireFromString("2.5")},
	{decimal.RequireFromString("3.5"), decimal.RequireFromString("2.0")},
	{decimal.RequireFromString("3.0"), decimal.RequireFromString("1.5")},
}

// ErrNotApproved is returned when an offer is requested for an application
// that fails the approval rule.
var ErrNotApproved = errors.New("application does not qualify for an offer")

// Engine computes approval decisions and offer terms. It has no I/O; the
// clock and id source are injectable for tests.
type Engine struct {
	now   func() time.Time
	newId func() string
}

func NewEngine() *Engine {
	return &Engine{
		now:   time.Now,
		newId: func() string { return uuid.New().String() },
	}
}

// IsApproved reports whether income is at least the minimum and the requested
// amount is within the income multiple.
func IsApproved(app models.MortgageApplication) bool {
	if app.YearlyIncome.LessThan(MinimumYearlyIncome) {
		return false
	}
	return app.RequestedAmount.LessThanOrEqual(MaxLoan(app.YearlyIncome))
}

// MaxLoan is the largest amount lent on a given income.
func MaxLoan(yearlyIncome decimal.Decimal) decimal.Decimal {
	return yearlyIncome.Mul(MaxIncomeMultiple)
}

// InterestRate returns the annual rate in percent for a loan-to-income ratio.
func InterestRate(ratio decimal.Decimal) decimal.Decimal {
	for _, tier := range rateTiers {
		if ratio.GreaterThan(tier.above) {
			return BaseRate.Add(tier.premium)
		}
	}
	return BaseRate
}

// MonthlyPayment amortizes principal over termYears at annualRate percent,
// rounded to cents half away from zero.
func MonthlyPayment(principal, annualRate decimal.Decimal, termYears int) decimal.Decimal {
	payments := int64(termYears) * 12
	if payments <= 0 {
		return principal.Round(2)
	}
	monthlyRate := annualRate.Div(hundred).Div(twelve)
	if monthlyRate.IsZero() {
		return principal.Div(decimal.NewFromInt(payments)).Round(2)
	}

	growth := pow(decimal.NewFromInt(1).Add(monthlyRate), payments)
	numerator := principal.Mul(monthlyRate).Mul(growth)
	denominator := growth.Sub(decimal.NewFromInt(1))
	return numerator.DivRound(denominator, powPrecision).Round(2)
}

// pow raises base to a non-negative integer power by repeated squaring.
func pow(base decimal.Decimal, exp int64) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(base).Round(powPrecision)
		}
		base = base.Mul(base).Round(powPrecision)
		exp >>= 1
	}
	return result
}

// GenerateOffer computes the terms for an approved application. DocumentRef is
// left empty for the caller to fill in.
func (e *Engine) GenerateOffer(app models.MortgageApplication) (models.MortgageOffer, error) {
	if !IsApproved(app) {
		return models.MortgageOffer{}, fmt.Errorf("%w: application %d", ErrNotApproved, app.Id)
	}

	approved := decimal.Min(app.RequestedAmount, MaxLoan(app.YearlyIncome))
	ratio := approved.Div(app.YearlyIncome)
	rate := InterestRate(ratio)
	created := e.now().UTC()

	offer := models.MortgageOffer{
		Id:             e.newId(),
		ApplicationId:  app.Id,
		ApprovedAmount: approved,
		InterestRate:   rate,
		TermYears:      TermYears,
		MonthlyPayment: MonthlyPayment(approved, rate, TermYears),
		CreatedAt:      created,
		ExpiresAt:      created.Add(OfferValidity),
	}

	zap.L().Debug("Offer generated",
		zap.Int64("application_id", app.Id),
		zap.String("approved_amount", approved.String()),
		zap.String("ratio", ratio.StringFixed(4)),
		zap.String("rate", rate.String()),
		zap.String("monthly_payment", offer.MonthlyPayment.StringFixed(2)))
	return offer, nil
}
