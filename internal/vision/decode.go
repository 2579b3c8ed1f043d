package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/JaimeStill/vigil/internal/concerns"
	"github.com/JaimeStill/vigil/pkg/formatting"
)

// Classification is the primary content category for a screenshot.
type Classification struct {
	Category            string              `json:"category"`
	Confidence          int                 `json:"confidence"`
	SecondaryCategories []SecondaryCategory `json:"secondaryCategories"`
	IsLowConfidence     bool                `json:"isLowConfidence"`
	NeedsReview         bool                `json:"needsReview"`
}

// SecondaryCategory is an additional category the screenshot plausibly fits.
type SecondaryCategory struct {
	Category   string `json:"category"`
	Confidence int    `json:"confidence"`
}

type rawClassification struct {
	Category            string         `json:"category"`
	Confidence          any            `json:"confidence"`
	SecondaryCategories []rawSecondary `json:"secondaryCategories"`
}

type rawSecondary struct {
	Category   string `json:"category"`
	Confidence any    `json:"confidence"`
}

type rawConcernSet struct {
	Concerns *[]rawConcern `json:"concerns"`
}

type rawConcern struct {
	Category   string `json:"category"`
	Severity   string `json:"severity"`
	Confidence any    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// DecodeClassification parses a classify-stage response. Confidence values
// are coerced and clamped. An unknown primary category is a schema
// violation; unknown secondary categories are dropped.
func DecodeClassification(content string) (Classification, error) {
	raw, err := formatting.Parse[rawClassification](content)
	if err != nil {
		return Classification{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	category, ok := canonical(raw.Category, concerns.BasicCategories)
	if !ok {
		return Classification{}, fmt.Errorf("%w: unknown category %q", ErrMalformedResponse, raw.Category)
	}

	result := Classification{
		Category:   category,
		Confidence: coerceConfidence(raw.Confidence),
	}

	for _, s := range raw.SecondaryCategories {
		name, ok := canonical(s.Category, concerns.BasicCategories)
		if !ok {
			continue
		}
		result.SecondaryCategories = append(result.SecondaryCategories, SecondaryCategory{
			Category:   name,
			Confidence: coerceConfidence(s.Confidence),
		})
	}

	return result, nil
}

// DecodeConcerns parses a concerns-stage response. The payload must be an
// object with a concerns array; a bare array is also accepted. Every
// reported concern is kept in response order, including repeated
// categories, since each may carry distinct reasoning.
func DecodeConcerns(content string) ([]concerns.Concern, error) {
	items, err := parseConcernItems(content)
	if err != nil {
		return nil, err
	}

	result := make([]concerns.Concern, 0, len(items))

	for _, item := range items {
		category, ok := canonical(item.Category, concerns.ConcernCategories)
		if !ok {
			return nil, fmt.Errorf("%w: unknown concern category %q", ErrMalformedResponse, item.Category)
		}
		severity := concerns.Severity(strings.ToLower(strings.TrimSpace(item.Severity)))
		if !severity.Valid() {
			return nil, fmt.Errorf("%w: unknown severity %q", ErrMalformedResponse, item.Severity)
		}

		result = append(result, concerns.Concern{
			Category:   category,
			Severity:   severity,
			Confidence: coerceConfidence(item.Confidence),
			Reasoning:  strings.TrimSpace(item.Reasoning),
		})
	}

	return result, nil
}

func parseConcernItems(content string) ([]rawConcern, error) {
	set, err := formatting.Parse[rawConcernSet](content)
	if err == nil && set.Concerns != nil {
		return *set.Concerns, nil
	}

	if list, listErr := formatting.Parse[[]rawConcern](content); listErr == nil {
		return list, nil
	}

	if err == nil {
		err = errors.New("missing concerns array")
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
}

// canonical matches name case-insensitively against allowed and returns
// the canonical spelling.
func canonical(name string, allowed []string) (string, bool) {
	name = strings.TrimSpace(name)
	i := slices.IndexFunc(allowed, func(a string) bool {
		return strings.EqualFold(a, name)
	})
	if i < 0 {
		return "", false
	}
	return allowed[i], true
}

// coerceConfidence converts a decoded confidence to an integer in [0, 100].
// Numeric strings (optionally with a trailing %) are parsed; any other
// non-numeric value becomes 0.
func coerceConfidence(v any) int {
	switch n := v.(type) {
	case float64:
		return concerns.ClampFloat(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return concerns.ClampFloat(f)
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(n), "%")
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		return concerns.ClampFloat(f)
	default:
		return 0
	}
}
