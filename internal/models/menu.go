// internal/models/menu.go
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Source identifies a fast-food chain and the adapter capable of scraping it.
// Sources are configured at startup and never mutated afterwards.
type Source struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	AdapterCapability string `json:"adapterCapability"`
}

// RawItem is adapter output before normalization. The payload is whatever the
// source's scraper produced; only the Normalizer interprets it.
type RawItem struct {
	SourceID  string                 `json:"sourceId"`
	Payload   map[string]interface{} `json:"payload"`
	FetchedAt time.Time              `json:"fetchedAt"`
}

// Nutrition holds structured macro data when the source exposes it.
type Nutrition struct {
	Calories     int     `json:"calories"`
	ProteinGrams float64 `json:"proteinGrams"`
}

// MenuItem is the canonical normalized record. ItemID is stable across cycles
// for the same logical item, which is what makes score reuse and change
// detection possible.
type MenuItem struct {
	ItemID           string     `json:"itemId"`
	SourceID         string     `json:"sourceId"`
	Name             string     `json:"name"`
	Variant          string     `json:"variant,omitempty"`
	PriceCents       int        `json:"priceCents"`
	PortionSizeGrams int        `json:"portionSizeGrams,omitempty"`
	Nutrition        *Nutrition `json:"nutrition,omitempty"`
	IsAppExclusive   bool       `json:"isAppExclusive"`
	ObservedAt       time.Time  `json:"observedAt"`
}

var nameCleanExpr = regexp.MustCompile(`[^a-z0-9 ]+`)

// CanonicalName lowercases, strips punctuation, and collapses whitespace so
// minor formatting drift in the raw payload does not change item identity.
func CanonicalName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nameCleanExpr.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// ItemID computes the deterministic identity hash over source, canonical name,
// and variant descriptor.
func ItemID(sourceID, name, variant string) string {
	sum := sha256.Sum256([]byte(sourceID + "\x00" + CanonicalName(name) + "\x00" + CanonicalName(variant)))
	return hex.EncodeToString(sum[:16])
}

// ContentHash digests the fields a score depends on. A cached ValueScore is
// valid only while the item's content hash matches what was scored.
func (m MenuItem) ContentHash() string {
	var nutrition string
	if m.Nutrition != nil {
		nutrition = fmt.Sprintf("%d:%.2f", m.Nutrition.Calories, m.Nutrition.ProteinGrams)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%s", m.PriceCents, m.PortionSizeGrams, nutrition)))
	return hex.EncodeToString(sum[:16])
}
