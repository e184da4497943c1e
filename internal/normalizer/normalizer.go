// internal/normalizer/normalizer.go
// Package normalizer converts raw adapter payloads into canonical menu items.
package normalizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	stderrors "menuranker/internal/common/errors"
	"menuranker/internal/common/logger"
	"menuranker/internal/common/metrics"
	"menuranker/internal/models"
)

// Payload keys adapters are expected to emit. Name and price are mandatory;
// everything else is best-effort.
const (
	FieldName         = "name"
	FieldVariant      = "variant"
	FieldPriceCents   = "price_cents"
	FieldPrice        = "price" // dollars, accepted as fallback
	FieldPortionGrams = "portion_grams"
	FieldCalories     = "calories"
	FieldProtein      = "protein_grams"
	FieldAppExclusive = "app_exclusive"
)

// Result holds the outcome of normalizing one source's raw batch.
type Result struct {
	Items   []models.MenuItem
	Dropped int
}

type Normalizer struct {
	logger logger.Logger
}

func New(log logger.Logger) *Normalizer {
	return &Normalizer{logger: log}
}

// Normalize converts a batch of raw items from one source. Malformed items are
// dropped and logged individually; normalization never fails a whole batch.
// The same raw input always yields the same MenuItem, including its ItemID.
func (n *Normalizer) Normalize(sourceID string, raw []models.RawItem) Result {
	res := Result{Items: make([]models.MenuItem, 0, len(raw))}
	seen := make(map[string]bool, len(raw))

	for _, r := range raw {
		item, err := n.normalizeOne(sourceID, r)
		if err != nil {
			res.Dropped++
			metrics.ItemsDropped.WithLabelValues(sourceID).Inc()
			n.logger.WithError(err).Warn("Dropping raw item", map[string]interface{}{
				"sourceId": sourceID,
			})
			continue
		}
		// Duplicate identities within one fetch collapse to the first
		// occurrence so downstream merging stays deterministic.
		if seen[item.ItemID] {
			res.Dropped++
			metrics.ItemsDropped.WithLabelValues(sourceID).Inc()
			continue
		}
		seen[item.ItemID] = true
		res.Items = append(res.Items, item)
		metrics.ItemsNormalized.WithLabelValues(sourceID).Inc()
	}

	return res
}

func (n *Normalizer) normalizeOne(sourceID string, raw models.RawItem) (models.MenuItem, error) {
	name, ok := asString(raw.Payload[FieldName])
	if !ok || strings.TrimSpace(name) == "" {
		return models.MenuItem{}, stderrors.NewItemNormalizationError(sourceID, "missing name")
	}
	if models.CanonicalName(name) == "" {
		return models.MenuItem{}, stderrors.NewItemNormalizationError(sourceID, fmt.Sprintf("name %q canonicalizes to empty", name))
	}

	priceCents, err := extractPriceCents(raw.Payload)
	if err != nil {
		return models.MenuItem{}, stderrors.NewItemNormalizationError(sourceID, err.Error())
	}

	variant, _ := asString(raw.Payload[FieldVariant])

	observed := raw.FetchedAt
	if observed.IsZero() {
		observed = time.Now().UTC()
	}

	item := models.MenuItem{
		ItemID:         models.ItemID(sourceID, name, variant),
		SourceID:       sourceID,
		Name:           strings.TrimSpace(name),
		Variant:        strings.TrimSpace(variant),
		PriceCents:     priceCents,
		IsAppExclusive: asBool(raw.Payload[FieldAppExclusive]),
		ObservedAt:     observed,
	}

	// Optional enrichment: absence is fine, garbage is ignored.
	if grams, ok := asInt(raw.Payload[FieldPortionGrams]); ok && grams > 0 {
		item.PortionSizeGrams = grams
	}
	calories, haveCal := asInt(raw.Payload[FieldCalories])
	protein, haveProt := asFloat(raw.Payload[FieldProtein])
	if haveCal && calories > 0 {
		nut := &models.Nutrition{Calories: calories}
		if haveProt && protein >= 0 {
			nut.ProteinGrams = protein
		}
		item.Nutrition = nut
	}

	return item, nil
}

func extractPriceCents(payload map[string]interface{}) (int, error) {
	if cents, ok := asInt(payload[FieldPriceCents]); ok {
		if cents <= 0 {
			return 0, fmt.Errorf("non-positive price_cents %d", cents)
		}
		return cents, nil
	}
	if dollars, ok := asFloat(payload[FieldPrice]); ok {
		if dollars <= 0 {
			return 0, fmt.Errorf("non-positive price %.2f", dollars)
		}
		return int(math.Round(dollars * 100)), nil
	}
	return 0, fmt.Errorf("missing price")
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

// asInt tolerates the numeric types JSON decoding and hand-built payloads
// produce.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
		return 0, false
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
