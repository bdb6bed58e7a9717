/*
 * Copyright 2026 Threatwire Contributors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pipeline

import (
	"strings"

	"github.com/threatwire/threatwire/pkg/models"
)

const (
	hunterProvider = "threatwire-hunter"
	hunterTag      = "hunter"

	// Derived records lose confidence relative to what triggered them.
	confidenceDecay   = 2.0
	minHuntConfidence = 1.0
)

// Hunter derives new indicators from a search a client just ran. Hunters
// must guard against chasing their own output; derived records are tagged
// so a second pass recognizes them.
type Hunter interface {
	Name() string
	Hunt(filter *models.SearchFilter) []*models.Indicator
}

// Hunters builds the static hunter set for a pool.
func Hunters(_ *models.PipelineConfig) []Hunter {
	return []Hunter{&urlHostHunter{}}
}

// urlHostHunter extracts the hostname from a searched URL and records it
// as a decayed fqdn indicator.
type urlHostHunter struct{}

func (h *urlHostHunter) Name() string { return "url-host" }

func (h *urlHostHunter) Hunt(filter *models.SearchFilter) []*models.Indicator {
	if filter.Indicator == "" || filter.FindRelatives {
		return nil
	}

	// Loop guard: never hunt a search we seeded ourselves.
	for _, p := range strings.Split(filter.Provider, ",") {
		if strings.TrimPrefix(p, "!") == hunterProvider {
			return nil
		}
	}

	if !strings.Contains(filter.Indicator, "://") {
		return nil
	}

	host := hostOf(filter.Indicator)
	if host == "" || host == filter.Indicator {
		return nil
	}

	// IP hosts are already first-class indicators elsewhere.
	if guessIType(host) != models.ITypeFQDN {
		return nil
	}

	conf := decayConfidence(filter)

	return []*models.Indicator{{
		Value:      host,
		IType:      models.ITypeFQDN,
		Provider:   hunterProvider,
		Group:      models.DefaultGroup,
		Tags:       []string{hunterTag},
		Confidence: conf,
		RData:      filter.Indicator,
	}}
}

// decayConfidence derives the confidence of a hunted record from the low
// bound of the triggering search, floored so derived data never vanishes
// below query thresholds entirely.
func decayConfidence(filter *models.SearchFilter) float64 {
	low, _, err := filter.ConfidenceRange()
	if err != nil {
		low = 0
	}

	conf := low - confidenceDecay
	if conf < minHuntConfidence {
		conf = minHuntConfidence
	}

	return conf
}
