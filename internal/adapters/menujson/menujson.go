// internal/adapters/menujson/menujson.go
// Package menujson scrapes menu pages that embed schema.org Menu data in
// ld+json script blocks, which covers most large chains' menu sites.
package menujson

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"menuranker/internal/adapters"
	"menuranker/internal/common/config"
	stderrors "menuranker/internal/common/errors"
	"menuranker/internal/common/logger"
	"menuranker/internal/models"
	"menuranker/internal/normalizer"

	"github.com/PuerkitoBio/goquery"
)

const Capability = "menujson"

// Factory returns the registry factory for this capability.
func Factory(httpClient *http.Client, log logger.Logger) adapters.Factory {
	return func(src config.SourceConfig) (adapters.Adapter, error) {
		if src.MenuURL == "" {
			return nil, fmt.Errorf("source %s: menujson adapter requires menu_url", src.ID)
		}
		return &Adapter{
			sourceID:   src.ID,
			menuURL:    src.MenuURL,
			httpClient: httpClient,
			logger:     log,
		}, nil
	}
}

type Adapter struct {
	sourceID   string
	menuURL    string
	httpClient *http.Client
	logger     logger.Logger
}

func (a *Adapter) SourceID() string { return a.sourceID }

// Fetch downloads the menu page and extracts every MenuItem found in its
// ld+json blocks. Items the page marks as app-only deals keep that flag.
func (a *Adapter) Fetch(ctx context.Context) ([]models.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.menuURL, nil)
	if err != nil {
		return nil, stderrors.NewAdapterFetchFailedError(a.sourceID, err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, stderrors.NewAdapterTimeoutError(a.sourceID)
		}
		return nil, stderrors.NewAdapterFetchFailedError(a.sourceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, stderrors.NewAdapterFetchFailedError(a.sourceID, fmt.Errorf("status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, stderrors.NewAdapterFetchFailedError(a.sourceID, err)
	}

	fetchedAt := time.Now().UTC()
	var items []models.RawItem

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var node interface{}
		if err := json.Unmarshal([]byte(sel.Text()), &node); err != nil {
			a.logger.WithError(err).Debug("Skipping unparseable ld+json block", map[string]interface{}{
				"sourceId": a.sourceID,
			})
			return
		}
		walkMenuItems(node, func(menuItem map[string]interface{}) {
			items = append(items, models.RawItem{
				SourceID:  a.sourceID,
				Payload:   payloadFrom(menuItem),
				FetchedAt: fetchedAt,
			})
		})
	})

	if len(items) == 0 {
		return nil, stderrors.NewAdapterFetchFailedError(a.sourceID, fmt.Errorf("no MenuItem entries found at %s", a.menuURL))
	}

	a.logger.Info("Fetched menu page", map[string]interface{}{
		"sourceId": a.sourceID,
		"rawItems": len(items),
	})
	return items, nil
}

// walkMenuItems descends arbitrarily nested ld+json (Menu, hasMenuSection,
// @graph wrappers) and invokes fn for every object typed MenuItem.
func walkMenuItems(node interface{}, fn func(map[string]interface{})) {
	switch n := node.(type) {
	case map[string]interface{}:
		if t, _ := n["@type"].(string); strings.EqualFold(t, "MenuItem") {
			fn(n)
			return
		}
		for _, child := range n {
			walkMenuItems(child, fn)
		}
	case []interface{}:
		for _, child := range n {
			walkMenuItems(child, fn)
		}
	}
}

// payloadFrom flattens one schema.org MenuItem into the key set the
// normalizer understands.
func payloadFrom(menuItem map[string]interface{}) map[string]interface{} {
	payload := map[string]interface{}{}

	if name, ok := menuItem["name"].(string); ok {
		payload[normalizer.FieldName] = name
	}
	if variant, ok := menuItem["description"].(string); ok && looksLikeVariant(variant) {
		payload[normalizer.FieldVariant] = variant
	}

	if offer := firstObject(menuItem["offers"]); offer != nil {
		if price, ok := numericValue(offer["price"]); ok {
			payload[normalizer.FieldPrice] = price
		}
		if cat, ok := offer["category"].(string); ok && strings.EqualFold(cat, "AppOnly") {
			payload[normalizer.FieldAppExclusive] = true
		}
	}

	if nutrition := firstObject(menuItem["nutrition"]); nutrition != nil {
		if cal, ok := leadingNumber(nutrition["calories"]); ok {
			payload[normalizer.FieldCalories] = int(cal)
		}
		if protein, ok := leadingNumber(nutrition["proteinContent"]); ok {
			payload[normalizer.FieldProtein] = protein
		}
		if grams, ok := leadingNumber(nutrition["servingSize"]); ok {
			payload[normalizer.FieldPortionGrams] = int(grams)
		}
	}

	return payload
}

// looksLikeVariant keeps short size descriptors ("Large", "6 pc") and drops
// marketing prose.
func looksLikeVariant(s string) bool {
	return len(strings.Fields(s)) <= 3
}

func firstObject(v interface{}) map[string]interface{} {
	switch n := v.(type) {
	case map[string]interface{}:
		return n
	case []interface{}:
		if len(n) > 0 {
			if m, ok := n[0].(map[string]interface{}); ok {
				return m
			}
		}
	}
	return nil
}

func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

var leadingNumberExpr = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)`)

// leadingNumber parses schema.org quantity strings like "550 calories" or
// "25 g".
func leadingNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		m := leadingNumberExpr.FindStringSubmatch(n)
		if m == nil {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}
