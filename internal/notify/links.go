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
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultOfferBaseURL = "https://buymyhouse.com/mortgage-offers"
	DefaultLinkTTL      = 7 * 24 * time.Hour
)

// OfferLinks builds the expiring link included in offer e-mails.
type OfferLinks struct {
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

func NewOfferLinks(baseURL string, ttl time.Duration) *OfferLinks {
	if baseURL == "" {
		baseURL = DefaultOfferBaseURL
	}
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	return &OfferLinks{baseURL: strings.TrimSuffix(baseURL, "/"), ttl: ttl, now: time.Now}
}

// Generate returns <base>/<id>?token=<random>&expires=<unix seconds>.
func (l *OfferLinks) Generate(applicationId int64) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	expires := l.now().Add(l.ttl).Unix()

	return fmt.Sprintf("%s/%d?token=%s&expires=%s",
		l.baseURL, applicationId, url.QueryEscape(token), strconv.FormatInt(expires, 10))
}
