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

package notify

import (
	"fmt"
	"net/mail"
	"strings"
	"text/template"
)

const OfferSubject = "Your Mortgage Offer is Ready"

var offerBody = template.Must(template.New("offer").Parse(`Dear {{.Name}},

Your mortgage application has been processed!

Please click the link below to view your offer:
{{.URL}}

This offer is valid for 14 days from the date of generation.

Best regards,
BuyMyHouse Estate Agents
`))

// Message is a rendered offer e-mail.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// RenderOfferEmail validates the recipient and fills in the offer template.
func RenderOfferEmail(from, to, name, offerURL string) (Message, error) {
	if _, err := mail.ParseAddress(to); err != nil {
		return Message{}, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	if offerURL == "" {
		return Message{}, fmt.Errorf("offer url cannot be empty")
	}

	var body strings.Builder
	err := offerBody.Execute(&body, struct{ Name, URL string }{Name: name, URL: offerURL})
	if err != nil {
		return Message{}, fmt.Errorf("unable to render offer e-mail: %w", err)
	}

	return Message{From: from, To: to, Subject: OfferSubject, Body: body.String()}, nil
}
