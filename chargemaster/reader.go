// Package chargemaster converts a hospital standard-charges CSV into the
// published JSON resources: base.json, one payer_<slug>.json per payer and
// payers.json.
package chargemaster

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/robbie-med/Sjprice/logging"
)

// Column positions of the data rows.
const (
	colDescription      = 0
	colCode1            = 1
	colCode1Type        = 2
	colCode2            = 3
	colCode2Type        = 4
	colSetting          = 6
	colDrugUnit         = 7
	colDrugType         = 8
	colGross            = 9
	colDiscountedCash   = 10
	colPayerName        = 11
	colNegotiatedDollar = 13
	colEstimatedAmount  = 16
	colMin              = 18
	colMax              = 19

	minDataColumns = 10
)

// defaultPayer marks the chargemaster's own rows, which carry no contract.
const defaultPayer = "CDM DEFAULT"

// PayerRates is one payer's sparse rate table keyed by item index.
type PayerRates struct {
	Name  string
	Rates map[int]decimal.Decimal
}

// Result is a converted chargemaster.
type Result struct {
	Catalog *entities.Catalog
	Payers  []PayerRates // sorted by name
	Rows    int
	Skipped int
}

type itemKey struct {
	description string
	code        string
}

// Read parses a standard-charges CSV: a meta header row, a meta values row,
// the column header row, then one row per item and payer. Items are
// deduplicated by description and first code and keep first-seen order.
// Input that is not valid UTF-8 is decoded as ISO-8859-1.
func Read(r io.Reader) (*Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	var src io.Reader = bytes.NewReader(raw)
	if !utf8.Valid(raw) {
		logging.Info("Input is not valid UTF-8, decoding as ISO-8859-1")
		src = charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(raw))
	}

	reader := csv.NewReader(src)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("read meta header row: %w", err)
	}
	metaValues, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read meta values row: %w", err)
	}
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("read column header row: %w", err)
	}

	res := &Result{Catalog: &entities.Catalog{Meta: parseMeta(metaValues)}}
	index := make(map[itemKey]int)
	rates := make(map[string]map[int]decimal.Decimal)

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read data row %d: %w", res.Rows+1, err)
		}
		res.Rows++

		if len(row) < minDataColumns {
			res.Skipped++
			continue
		}

		key := itemKey{description: field(row, colDescription), code: field(row, colCode1)}
		idx, seen := index[key]
		if !seen {
			idx = len(res.Catalog.Items)
			index[key] = idx
			res.Catalog.Items = append(res.Catalog.Items, newItem(row))
		}
		widenRange(&res.Catalog.Items[idx], row)

		payer := field(row, colPayerName)
		if payer == "" || payer == defaultPayer {
			continue
		}
		table, ok := rates[payer]
		if !ok {
			table = make(map[int]decimal.Decimal)
			rates[payer] = table
		}
		if rate, ok := payerRate(row); ok {
			if _, exists := table[idx]; !exists {
				table[idx] = rate
			}
		}
	}

	names := make([]string, 0, len(rates))
	for name := range rates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res.Payers = append(res.Payers, PayerRates{Name: name, Rates: rates[name]})
	}

	logging.Info("Chargemaster parsed",
		"rows", res.Rows,
		"skipped", res.Skipped,
		"items", len(res.Catalog.Items),
		"payers", len(res.Payers))
	return res, nil
}

func parseMeta(values []string) entities.Meta {
	license := field(values, 5)
	if i := strings.Index(license, "|"); i >= 0 {
		license = license[:i]
	}
	return entities.Meta{
		HospitalName:       field(values, 0),
		LastUpdatedOn:      field(values, 1),
		Version:            field(values, 2),
		HospitalLocation:   field(values, 3),
		HospitalAddress:    field(values, 4),
		LicenseNumber:      license,
		FinancialAidPolicy: field(values, 7),
		BillingClass:       field(values, 9),
	}
}

func newItem(row []string) entities.Item {
	item := entities.Item{
		Description:    field(row, colDescription),
		GrossCharge:    parseAmount(field(row, colGross)),
		DiscountedCash: parseAmount(field(row, colDiscountedCash)),
		Setting:        entities.ParseSetting(field(row, colSetting)),
	}

	pairs := [][2]int{{colCode1, colCode1Type}, {colCode2, colCode2Type}}
	for _, p := range pairs {
		code, codeType := field(row, p[0]), field(row, p[1])
		if code != "" && codeType != "" {
			item.Codes = append(item.Codes, entities.Code{Value: code, Type: codeType})
		}
	}

	if units, ok := parseUnits(field(row, colDrugUnit)); ok {
		if unitType := field(row, colDrugType); unitType != "" {
			item.Drug = &entities.DrugPackage{UnitsPerPackage: units, UnitType: unitType}
		}
	}
	return item
}

// widenRange keeps the lowest min and highest max seen across an item's rows.
func widenRange(item *entities.Item, row []string) {
	if lo := parseAmount(field(row, colMin)); lo.Valid {
		if !item.MinRate.Valid || lo.Decimal.LessThan(item.MinRate.Decimal) {
			item.MinRate = lo
		}
	}
	if hi := parseAmount(field(row, colMax)); hi.Valid {
		if !item.MaxRate.Valid || hi.Decimal.GreaterThan(item.MaxRate.Decimal) {
			item.MaxRate = hi
		}
	}
}

// payerRate prefers the estimated amount and falls back to the negotiated
// dollar amount. A zero estimate counts as missing.
func payerRate(row []string) (decimal.Decimal, bool) {
	if est := parseAmount(field(row, colEstimatedAmount)); est.Valid && !est.Decimal.IsZero() {
		return est.Decimal, true
	}
	if neg := parseAmount(field(row, colNegotiatedDollar)); neg.Valid {
		return neg.Decimal, true
	}
	return decimal.Decimal{}, false
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseAmount reads a dollar amount rounded to cents. Blank or malformed
// values are absent.
func parseAmount(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d.Round(2))
}

func parseUnits(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return math.Round(f*100) / 100, true
}
