// Package catalog loads the published chargemaster resources: the item
// catalog (base.json, optionally split into chunks), the payer directory
// (payers.json) and per-payer negotiated rate tables.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/robbie-med/Sjprice/pricing"
	"github.com/shopspring/decimal"
)

// DecodeChunk reads one catalog chunk. A chunk is either the full
// {"meta":…, "items":[…]} document or a bare item array.
func DecodeChunk(r io.Reader) (entities.Meta, []entities.Item, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return entities.Meta{}, nil, fmt.Errorf("read chunk: %w", err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []entities.Item
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return entities.Meta{}, nil, fmt.Errorf("decode item array: %w", err)
		}
		return entities.Meta{}, items, nil
	}

	var doc entities.Catalog
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return entities.Meta{}, nil, fmt.Errorf("decode catalog: %w", err)
	}
	return doc.Meta, doc.Items, nil
}

// Assemble concatenates chunks in the order given. Positions in the result
// are the item indexes used by rate tables and carts, so chunk order must be
// the original order.
func Assemble(meta entities.Meta, chunks ...[]entities.Item) *entities.Catalog {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	items := make([]entities.Item, 0, total)
	for _, c := range chunks {
		items = append(items, c...)
	}
	return &entities.Catalog{Meta: meta, Items: items}
}

// DecodePayers reads payers.json.
func DecodePayers(r io.Reader) ([]entities.Payer, error) {
	var files []entities.PayerFile
	if err := json.NewDecoder(r).Decode(&files); err != nil {
		return nil, fmt.Errorf("decode payer directory: %w", err)
	}

	payers := make([]entities.Payer, 0, len(files))
	for _, f := range files {
		if strings.TrimSpace(f.Name) == "" || f.File == "" {
			continue
		}
		payers = append(payers, entities.Payer{
			ID:          Slugify(f.Name),
			DisplayName: f.Name,
			ItemCount:   f.Count,
			DataLocator: f.File,
		})
	}
	return payers, nil
}

// DecodeRateTable reads a payer file: {"<item index>": amount, …}.
func DecodeRateTable(r io.Reader) (*pricing.RateTable, error) {
	var raw map[string]decimal.Decimal
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode rate table: %w", err)
	}

	rates := make(map[int]decimal.Decimal, len(raw))
	for key, amount := range raw {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("invalid item index %q in rate table", key)
		}
		rates[idx] = amount
	}
	return pricing.NewRateTable(rates), nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a payer name into the identifier used for its id and file
// name, e.g. "Blue Cross (PPO)" -> "blue_cross_ppo".
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonSlug.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
