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
	"context"
	"fmt"
	"time"

	"mortgage-ledger-go/internal/models"

	"go.uber.org/zap"
)

// Container is the folder or bucket prefix offer documents are written under.
const Container = "mortgage-offers"

// Generator renders and stores an offer document, returning a reference to it.
type Generator interface {
	CreateOfferDocument(ctx context.Context, offer models.MortgageOffer) (string, error)
}

// Compile-time check: *PDFGenerator must satisfy Generator.
var _ Generator = (*PDFGenerator)(nil)

// PDFGenerator renders offers as PDF and hands them to a BlobStore.
type PDFGenerator struct {
	blobs BlobStore
	now   func() time.Time
}

func NewPDFGenerator(blobs BlobStore) *PDFGenerator {
	return &PDFGenerator{blobs: blobs, now: time.Now}
}

func (g *PDFGenerator) CreateOfferDocument(ctx context.Context, offer models.MortgageOffer) (string, error) {
	generatedAt := g.now().UTC()

	data, err := renderOffer(offer, generatedAt)
	if err != nil {
		return "", fmt.Errorf("unable to render offer document for application %d: %w", offer.ApplicationId, err)
	}

	name := BlobName(offer.ApplicationId, generatedAt)
	ref, err := g.blobs.Put(ctx, name, "application/pdf", data)
	if err != nil {
		return "", fmt.Errorf("unable to store offer document %s: %w", name, err)
	}

	zap.L().Info("Generated mortgage offer document",
		zap.Int64("application_id", offer.ApplicationId),
		zap.String("document_ref", ref),
		zap.Int("bytes", len(data)))
	return ref, nil
}

// BlobName is <applicationId>_<yyyyMMddHHmmss>.pdf in UTC.
func BlobName(applicationId int64, generatedAt time.Time) string {
	return fmt.Sprintf("%d_%s.pdf", applicationId, generatedAt.UTC().Format("20060102150405"))
}
