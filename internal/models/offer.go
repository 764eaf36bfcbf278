package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MortgageOffer holds the terms computed for an approved application. Offers
// are not persisted; only the document reference and approved amount are
// written back onto the application.
type MortgageOffer struct {
	Id             string          `json:"id"`
	ApplicationId  int64           `json:"applicationId"`
	ApprovedAmount decimal.Decimal `json:"approvedAmount"`
	InterestRate   decimal.Decimal `json:"interestRate"`
	TermYears      int             `json:"termYears"`
	MonthlyPayment decimal.Decimal `json:"monthlyPayment"`
	CreatedAt      time.Time       `json:"createdAt"`
	ExpiresAt      time.Time       `json:"expiresAt"`
	DocumentRef    string          `json:"documentRef,omitempty"`
}

// BatchResult summarizes one pipeline run.
type BatchResult struct {
	Job        string        `json:"job"`
	Processed  int           `json:"processed"`
	Approved   int           `json:"approved"`
	Rejected   int           `json:"rejected"`
	Sent       int           `json:"sent"`
	Failed     int           `json:"failed"`
	Reconciled int           `json:"reconciled"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
}
