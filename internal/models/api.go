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

package models

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// CreateApplicationRequest is the intake payload for a new application
type CreateApplicationRequest struct {
	ApplicantEmail  string          `json:"applicantEmail" binding:"required,email"`
	ApplicantName   string          `json:"applicantName" binding:"required,min=2"`
	YearlyIncome    decimal.Decimal `json:"yearlyIncome"`
	RequestedAmount decimal.Decimal `json:"requestedAmount"`
	PropertyId      int64           `json:"propertyId" binding:"required,min=1"`
}

// Validate applies the intake rules that are not expressible as binding tags
// and repeats the tag rules for callers that bypass HTTP binding.
func (r CreateApplicationRequest) Validate() error {
	if r.ApplicantEmail == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(r.ApplicantEmail) {
		return fmt.Errorf("invalid email format: %s", r.ApplicantEmail)
	}
	if len(r.ApplicantName) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	if r.YearlyIncome.IsNegative() {
		return fmt.Errorf("yearly income cannot be negative")
	}
	if r.RequestedAmount.IsNegative() {
		return fmt.Errorf("requested amount cannot be negative")
	}
	if r.PropertyId < 1 {
		return fmt.Errorf("property id must be at least 1, got %d", r.PropertyId)
	}
	return nil
}

// UpdateStatusRequest changes an application's state
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ErrorResponse is the JSON body returned for failed requests
type ErrorResponse struct {
	Message string `json:"message"`
}

// ApplicationsResponse wraps a list of applications
type ApplicationsResponse struct {
	State        ApplicationState      `json:"state"`
	Count        int                   `json:"count"`
	Applications []MortgageApplication `json:"applications"`
}
