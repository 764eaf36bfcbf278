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
	"context"

	"go.uber.org/zap"
)

// Notifier delivers the offer link to an applicant.
type Notifier interface {
	SendOfferEmail(ctx context.Context, to, name, offerURL string) error
}

// Compile-time checks for the Notifier implementations.
var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*SESNotifier)(nil)
	_ Notifier = (*WebhookNotifier)(nil)
)

// LogNotifier writes the rendered e-mail to the log instead of sending it.
type LogNotifier struct {
	from string
}

func NewLogNotifier(from string) *LogNotifier {
	return &LogNotifier{from: from}
}

func (n *LogNotifier) SendOfferEmail(ctx context.Context, to, name, offerURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := RenderOfferEmail(n.from, to, name, offerURL)
	if err != nil {
		return err
	}

	zap.L().Info("Offer e-mail",
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}
