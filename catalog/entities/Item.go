package entities

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Code is one billing code attached to an item, e.g. {"c":"99213","t":"CPT"}.
type Code struct {
	Value string `json:"c"`
	Type  string `json:"t"`
}

// DrugPackage describes how many billing units one charge covers.
type DrugPackage struct {
	UnitsPerPackage float64 `json:"u"`
	UnitType        string  `json:"t"`
}

// Setting is the care setting an item is billed in.
type Setting string

const (
	SettingUnknown    Setting = ""
	SettingInpatient  Setting = "inpatient"
	SettingOutpatient Setting = "outpatient"
	SettingBoth       Setting = "both"
)

// UnmarshalJSON accepts any casing and maps unknown values to SettingUnknown.
func (s *Setting) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		// null or a non-string value, treat as absent
		*s = SettingUnknown
		return nil
	}
	*s = ParseSetting(raw)
	return nil
}

// ParseSetting normalizes a raw setting value.
func ParseSetting(raw string) Setting {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "inpatient":
		return SettingInpatient
	case "outpatient":
		return SettingOutpatient
	case "both":
		return SettingBoth
	}
	return SettingUnknown
}

// Item is one priced line of the hospital chargemaster. The JSON keys are the
// compact ones used by the published base.json.
type Item struct {
	Description    string              `json:"d"`
	GrossCharge    decimal.NullDecimal `json:"g"`
	DiscountedCash decimal.NullDecimal `json:"dc"`
	Codes          []Code              `json:"codes,omitempty"`
	Drug           *DrugPackage        `json:"drug,omitempty"`
	Setting        Setting             `json:"s,omitempty"`
	MinRate        decimal.NullDecimal `json:"min,omitzero"`
	MaxRate        decimal.NullDecimal `json:"max,omitzero"`
}

// HasCodeType reports whether the item carries a code of the given type.
func (it *Item) HasCodeType(codeType string) bool {
	for _, c := range it.Codes {
		if strings.EqualFold(c.Type, codeType) {
			return true
		}
	}
	return false
}

// HasDrugPackage reports whether the item is sold by drug unit.
func (it *Item) HasDrugPackage() bool {
	return it.Drug != nil && it.Drug.UnitsPerPackage > 0
}
