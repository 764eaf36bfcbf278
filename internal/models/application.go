package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ApplicationState is the lifecycle state of a mortgage application. Its string
// form doubles as the partition key of the applications table.
type ApplicationState string

const (
	StateAwaitingReview  ApplicationState = "AwaitingReview"
	StateUnderProcessing ApplicationState = "UnderProcessing"
	StateAccepted        ApplicationState = "Accepted"
	StateDeclined        ApplicationState = "Declined"
	StateOfferDelivered  ApplicationState = "OfferDelivered"
)

// AllStates lists every state in lifecycle order.
var AllStates = []ApplicationState{
	StateAwaitingReview,
	StateUnderProcessing,
	StateAccepted,
	StateDeclined,
	StateOfferDelivered,
}

var allowedTransitions = map[ApplicationState][]ApplicationState{
	StateAwaitingReview:  {StateUnderProcessing},
	StateUnderProcessing: {StateAccepted, StateDeclined},
	StateAccepted:        {StateOfferDelivered},
}

func (s ApplicationState) String() string {
	return string(s)
}

func (s ApplicationState) IsValid() bool {
	for _, state := range AllStates {
		if s == state {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition leaves this state.
func (s ApplicationState) IsTerminal() bool {
	return s == StateDeclined || s == StateOfferDelivered
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ApplicationState) CanTransitionTo(next ApplicationState) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseApplicationState accepts the canonical state names, case-insensitively.
func ParseApplicationState(value string) (ApplicationState, error) {
	for _, state := range AllStates {
		if strings.EqualFold(value, string(state)) {
			return state, nil
		}
	}
	return "", fmt.Errorf("unknown application state: %q", value)
}

// MortgageApplication is a single applicant's request for a loan on a property.
type MortgageApplication struct {
	Id               int64            `json:"id"`
	ApplicantEmail   string           `json:"applicantEmail"`
	ApplicantName    string           `json:"applicantName"`
	YearlyIncome     decimal.Decimal  `json:"yearlyIncome"`
	RequestedAmount  decimal.Decimal  `json:"requestedAmount"`
	PropertyId       int64            `json:"propertyId"`
	SubmittedAt      time.Time        `json:"submittedAt"`
	State            ApplicationState `json:"state"`
	OfferDocumentRef string           `json:"offerDocumentRef,omitempty"`
	ApprovedAmount   decimal.Decimal  `json:"approvedAmount"`
	Revision         int64            `json:"revision"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// ApplicantIncome is the audit snapshot of an applicant's income, bucketed by
// the calendar month of submission.
type ApplicantIncome struct {
	Month          string          `json:"month"`
	ApplicationId  int64           `json:"applicationId"`
	ApplicantEmail string          `json:"applicantEmail"`
	YearlyIncome   decimal.Decimal `json:"yearlyIncome"`
	RecordedAt     time.Time       `json:"recordedAt"`
}

// IncomeMonth returns the YYYY-MM bucket for t in UTC.
func IncomeMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}
