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

package common

import (
	"fmt"
	"os"
	"path/filepath"

	"mortgage-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type ApplicationSeed struct {
	Email           string `yaml:"email"`
	Name            string `yaml:"name"`
	YearlyIncome    string `yaml:"yearly_income"`
	RequestedAmount string `yaml:"requested_amount"`
	PropertyId      int64  `yaml:"property_id"`
}

type ApplicationsSeedFile struct {
	Applications []ApplicationSeed `yaml:"applications"`
}

// LoadApplicationSeeds reads a YAML file of applications and converts every
// entry to an intake request. Relative paths resolve against the working
// directory.
func LoadApplicationSeeds(seedFile string) ([]models.CreateApplicationRequest, error) {
	var seedPath string
	if filepath.IsAbs(seedFile) {
		seedPath = seedFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		seedPath = filepath.Join(wd, seedFile)
	}

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", seedFile, err)
	}
	return ParseApplicationSeeds(data)
}

func ParseApplicationSeeds(data []byte) ([]models.CreateApplicationRequest, error) {
	var file ApplicationsSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse application seeds: %w", err)
	}

	requests := make([]models.CreateApplicationRequest, 0, len(file.Applications))
	for i, seed := range file.Applications {
		income, err := decimal.NewFromString(seed.YearlyIncome)
		if err != nil {
			return nil, fmt.Errorf("application at index %d has invalid yearly_income %q: %w", i, seed.YearlyIncome, err)
		}
		amount, err := decimal.NewFromString(seed.RequestedAmount)
		if err != nil {
			return nil, fmt.Errorf("application at index %d has invalid requested_amount %q: %w", i, seed.RequestedAmount, err)
		}

		req := models.CreateApplicationRequest{
			ApplicantEmail:  seed.Email,
			ApplicantName:   seed.Name,
			YearlyIncome:    income,
			RequestedAmount: amount,
			PropertyId:      seed.PropertyId,
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("application at index %d: %w", i, err)
		}
		requests = append(requests, req)
	}

	return requests, nil
}
