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

package documents

import (
	"fmt"
	"strconv"
	"time"

	"mortgage-ledger-go/internal/models"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var termsAndConditions = []string{
	"1. This offer is valid for 14 days from the date of generation.",
	"2. The interest rate is fixed for the entire term.",
	"3. Early repayment penalties may apply.",
	"4. Property insurance is required.",
	"5. This offer is subject to final approval and property valuation.",
}

func renderOffer(offer models.MortgageOffer, generatedAt time.Time) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(12, "Mortgage Offer", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(15,
		col.New(6).Add(
			text.New("Application ID: "+strconv.FormatInt(offer.ApplicationId, 10), props.Text{Top: 0}),
			text.New("Offer ID: "+offer.Id, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Date: "+generatedAt.Format("2006-01-02 15:04:05")+" UTC", props.Text{Top: 0, Align: align.Right}),
			text.New("Valid until: "+offer.ExpiresAt.UTC().Format("2006-01-02"), props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(12,
		text.NewCol(12, "Loan details", props.Text{Size: 14, Style: fontstyle.Bold, Top: 4}),
	)

	details := [][2]string{
		{"Approved amount", "EUR " + offer.ApprovedAmount.StringFixed(2)},
		{"Interest rate", offer.InterestRate.StringFixed(1) + "% per annum"},
		{"Term", fmt.Sprintf("%d years", offer.TermYears)},
		{"Monthly payment", "EUR " + offer.MonthlyPayment.StringFixed(2)},
	}
	for _, detail := range details {
		m.AddRow(8,
			text.NewCol(6, detail[0], props.Text{Size: 10}),
			text.NewCol(6, detail[1], props.Text{Size: 10, Align: align.Right}),
		)
	}

	m.AddRow(12,
		text.NewCol(12, "Terms and conditions", props.Text{Size: 14, Style: fontstyle.Bold, Top: 4}),
	)
	for _, line := range termsAndConditions {
		m.AddRow(7, text.NewCol(12, line, props.Text{Size: 9}))
	}

	m.AddRow(15,
		text.NewCol(12, "This is a binding offer upon acceptance.", props.Text{Size: 10, Style: fontstyle.Bold, Top: 6}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
