// Package validation checks loaded catalog data and user queries.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/robbie-med/Sjprice/interfaces"
	"github.com/robbie-med/Sjprice/logging"
	"github.com/robbie-med/Sjprice/pricing"
)

const (
	maxDescriptionLength = 500
	maxQueryLength       = 100
	maxQueryWords        = 10
	maxReportedIndexes   = 10
)

// Substrings that never occur in a price lookup and only show up in probes
var dangerousPatterns = []string{
	"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
	"eval(", "expression(", "file://", "../", "..\\", "%2e%2e",
	"${", "$(",
}

// DataValidatorImpl implements the interfaces.DataValidator interface
type DataValidatorImpl struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() interfaces.DataValidator {
	return &DataValidatorImpl{}
}

// ValidateItem checks if a catalog item is usable
func (v *DataValidatorImpl) ValidateItem(item *entities.Item) error {
	if item == nil {
		return fmt.Errorf("item is nil")
	}

	if strings.TrimSpace(item.Description) == "" {
		return fmt.Errorf("empty description")
	}

	if len(item.Description) > maxDescriptionLength {
		return fmt.Errorf("description too long: %d characters", len(item.Description))
	}

	amounts := []struct {
		name  string
		value interface{ IsNegative() bool }
		valid bool
	}{
		{"gross charge", item.GrossCharge.Decimal, item.GrossCharge.Valid},
		{"discounted cash price", item.DiscountedCash.Decimal, item.DiscountedCash.Valid},
		{"minimum rate", item.MinRate.Decimal, item.MinRate.Valid},
		{"maximum rate", item.MaxRate.Decimal, item.MaxRate.Valid},
	}
	for _, a := range amounts {
		if a.valid && a.value.IsNegative() {
			return fmt.Errorf("negative %s", a.name)
		}
	}

	if item.MinRate.Valid && item.MaxRate.Valid && item.MinRate.Decimal.GreaterThan(item.MaxRate.Decimal) {
		return fmt.Errorf("minimum rate %s above maximum rate %s", item.MinRate.Decimal, item.MaxRate.Decimal)
	}

	if item.Drug != nil && item.Drug.UnitsPerPackage <= 0 {
		return fmt.Errorf("non-positive units per package: %g", item.Drug.UnitsPerPackage)
	}

	return nil
}

// ReportDataQuality collects catalog problems. It never rejects a catalog;
// problems are logged and surfaced through the health endpoint.
func (v *DataValidatorImpl) ReportDataQuality(
	catalog *entities.Catalog,
	payers []entities.Payer,
) *interfaces.DataQualityReport {
	report := &interfaces.DataQualityReport{
		InvalidItemIndexes: []int{},
		PayersWithoutRates: []string{},
		DuplicatePayerIDs:  []string{},
	}

	// Check 1: invalid items (store first 10 indexes)
	// Check 2: items without any price
	// Check 3: duplicate (description, first code) keys
	keys := make(map[string]bool)
	for i, n := 0, catalog.Len(); i < n; i++ {
		item := catalog.At(i)

		if err := v.ValidateItem(item); err != nil {
			report.InvalidItems++
			if len(report.InvalidItemIndexes) < maxReportedIndexes {
				report.InvalidItemIndexes = append(report.InvalidItemIndexes, i)
				logging.Debug("Invalid catalog item", "index", i, "error", err)
			}
		}

		if !item.GrossCharge.Valid && !item.DiscountedCash.Valid {
			report.ItemsWithoutPrice++
		}

		key := item.Description
		if len(item.Codes) > 0 {
			key += "\x00" + item.Codes[0].Value
		}
		if keys[key] {
			report.DuplicateItemKeys++
		}
		keys[key] = true

		if item.HasDrugPackage() {
			report.DrugItems++
		}
	}

	// Check 4: payer directory
	ids := make(map[string]bool)
	for _, p := range payers {
		if ids[p.ID] {
			report.DuplicatePayerIDs = append(report.DuplicatePayerIDs, p.ID)
		}
		ids[p.ID] = true

		if p.ItemCount == 0 || p.DataLocator == "" {
			report.PayersWithoutRates = append(report.PayersWithoutRates, p.ID)
		}
	}

	return report
}

// ReportRateTable checks one payer's rate table against the catalog size.
func (v *DataValidatorImpl) ReportRateTable(payerID string, table *pricing.RateTable, catalogSize int) *interfaces.RateTableReport {
	report := &interfaces.RateTableReport{
		PayerID:           payerID,
		Rates:             table.Len(),
		OutOfRangeIndexes: []int{},
	}

	for _, idx := range table.Indexes() {
		if idx < 0 || idx >= catalogSize {
			report.OutOfRangeIndexes = append(report.OutOfRangeIndexes, idx)
			continue
		}
		if rate, _ := table.Lookup(idx); rate.IsNegative() {
			report.NegativeRates++
		}
	}

	return report
}

// ValidateQuery checks a search query. Empty and short queries are valid;
// the search engine answers them with a prompt.
func (v *DataValidatorImpl) ValidateQuery(input string) error {
	if len(input) > maxQueryLength {
		return fmt.Errorf("query too long: maximum %d characters", maxQueryLength)
	}

	// Word count validation to prevent DoS attacks with many short words
	if words := strings.Fields(input); len(words) > maxQueryWords {
		return fmt.Errorf("search query too complex: maximum %d words allowed", maxQueryWords)
	}

	for _, r := range input {
		if unicode.IsControl(r) && r != '\t' {
			return fmt.Errorf("query contains control characters")
		}
	}

	lowerInput := strings.ToLower(input)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowerInput, pattern) {
			return fmt.Errorf("query contains potentially dangerous content")
		}
	}

	if v.hasExcessiveRepetition(input) {
		return fmt.Errorf("query contains excessive character repetition")
	}

	return nil
}

// hasExcessiveRepetition checks for the same character repeated more than
// 10 times consecutively
func (v *DataValidatorImpl) hasExcessiveRepetition(input string) bool {
	for i := 0; i < len(input)-10; i++ {
		allSame := true
		for j := 1; j <= 10; j++ {
			if input[i] != input[i+j] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}
	return false
}
