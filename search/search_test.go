package search

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/robbie-med/Sjprice/pricing"
)

func gross(v int64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromInt(v), Valid: true}
}

func sampleCatalog() *entities.Catalog {
	return &entities.Catalog{Items: []entities.Item{
		{Description: "ACETAMINOPHEN 500 MG TAB", GrossCharge: gross(2),
			Drug: &entities.DrugPackage{UnitsPerPackage: 1, UnitType: "EA"}},
		{Description: "CBC WITH DIFF", GrossCharge: gross(45),
			Codes: []entities.Code{{Value: "85025", Type: "CPT"}}},
		{Description: "PRIVATE ROOM MED SURG", GrossCharge: gross(2500)},
		{Description: "SUTURE KIT", Codes: []entities.Code{{Value: "0270", Type: "RC"}}},
		{Description: "ONDANSETRON 4 MG/2ML INJ", GrossCharge: gross(30),
			Codes: []entities.Code{{Value: "J2405", Type: "HCPCS"}}},
		{Description: "MISC SERVICE FEE"},
	}}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		item entities.Item
		want Category
	}{
		{"drug package", entities.Item{Description: "X", Drug: &entities.DrugPackage{UnitsPerPackage: 1}}, CategoryPharmacy},
		{"hcpcs code", entities.Item{Description: "X", Codes: []entities.Code{{Value: "J1", Type: "HCPCS"}}}, CategoryPharmacy},
		{"room", entities.Item{Description: "Semi-Private Room"}, CategoryRoom},
		{"bed", entities.Item{Description: "ICU BED DAY"}, CategoryRoom},
		{"cpt", entities.Item{Description: "X-RAY CHEST", Codes: []entities.Code{{Value: "71045", Type: "CPT"}}}, CategoryProcedure},
		{"revenue code", entities.Item{Description: "GAUZE", Codes: []entities.Code{{Value: "0270", Type: "RC"}}}, CategorySupply},
		{"other", entities.Item{Description: "MISC"}, CategoryOther},
		// pharmacy wins over room, room over procedure
		{"drug in room", entities.Item{Description: "ROOM AIR", Drug: &entities.DrugPackage{UnitsPerPackage: 1}}, CategoryPharmacy},
		{"room with cpt", entities.Item{Description: "OR ROOM TIME", Codes: []entities.Code{{Value: "1", Type: "CPT"}}}, CategoryRoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(&tt.item); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTerms(t *testing.T) {
	if Terms("") != nil || Terms("   ") != nil || Terms(" a ") != nil {
		t.Error("Queries shorter than two characters should yield no terms")
	}
	got := Terms("  Acet  500 ")
	if len(got) != 2 || got[0] != "acet" || got[1] != "500" {
		t.Errorf("Terms() = %v", got)
	}
}

func TestRunPromptVersusEmpty(t *testing.T) {
	ix := NewIndex(sampleCatalog())
	e := NewEngine(0)
	sel := pricing.Selection{Mode: pricing.ModeGross}

	out := e.Run("a", ix, sel)
	if !out.Prompt || len(out.Results) != 0 {
		t.Errorf("Expected prompt for one-character query, got %+v", out)
	}

	out = e.Run("zzzz", ix, sel)
	if out.Prompt {
		t.Error("A runnable query with no hits should not prompt")
	}
	if len(out.Results) != 0 {
		t.Errorf("Expected no results, got %d", len(out.Results))
	}
}

func TestRunMultiTermAndCodes(t *testing.T) {
	ix := NewIndex(sampleCatalog())
	e := NewEngine(0)
	sel := pricing.Selection{Mode: pricing.ModeGross}

	out := e.Run("acet tab", ix, sel)
	if len(out.Results) != 1 || out.Results[0].Index != 0 {
		t.Fatalf("Expected acetaminophen, got %+v", out.Results)
	}

	// Terms can match across description and code
	out = e.Run("cbc 85025", ix, sel)
	if len(out.Results) != 1 || out.Results[0].Index != 1 {
		t.Fatalf("Expected CBC by code, got %+v", out.Results)
	}
	if out.Results[0].Category != CategoryProcedure {
		t.Errorf("Expected procedure, got %s", out.Results[0].Category)
	}

	// Case-insensitive
	out = e.Run("j2405", ix, sel)
	if len(out.Results) != 1 || out.Results[0].Index != 4 {
		t.Fatalf("Expected ondansetron by HCPCS code, got %+v", out.Results)
	}
	r := out.Results[0]
	if r.Parsed == nil || r.Parsed.FormCode != "INJ" {
		t.Errorf("Pharmacy result should carry parsed description, got %+v", r.Parsed)
	}
}

func TestRunKeepsCatalogOrderAndLimit(t *testing.T) {
	c := &entities.Catalog{}
	for i := 0; i < 150; i++ {
		c.Items = append(c.Items, entities.Item{Description: fmt.Sprintf("SALINE FLUSH %d", i)})
	}
	ix := NewIndex(c)
	out := NewEngine(DefaultLimit).Run("saline", ix, pricing.Selection{})

	if len(out.Results) != DefaultLimit {
		t.Fatalf("Expected %d results, got %d", DefaultLimit, len(out.Results))
	}
	for i, r := range out.Results {
		if r.Index != i {
			t.Fatalf("Result %d has index %d, expected catalog order", i, r.Index)
		}
	}
	if !out.Capped {
		t.Error("Expected capped outcome")
	}
}

func TestRunCappedOnlyWhenMoreMatchesExist(t *testing.T) {
	tests := []struct {
		items  int
		capped bool
	}{
		{4, false},
		{5, false},
		{6, true},
	}

	for _, tt := range tests {
		c := &entities.Catalog{}
		for i := 0; i < tt.items; i++ {
			c.Items = append(c.Items, entities.Item{Description: fmt.Sprintf("SALINE FLUSH %d", i)})
		}
		out := NewEngine(5).Run("saline", NewIndex(c), pricing.Selection{})

		if want := min(tt.items, 5); len(out.Results) != want {
			t.Errorf("%d items: expected %d results, got %d", tt.items, want, len(out.Results))
		}
		if out.Capped != tt.capped {
			t.Errorf("%d items: Capped = %v, want %v", tt.items, out.Capped, tt.capped)
		}
	}
}

func TestRunPricesUnderSelection(t *testing.T) {
	ix := NewIndex(sampleCatalog())
	e := NewEngine(0)

	table := pricing.NewRateTable(map[int]decimal.Decimal{1: decimal.NewFromInt(20)})
	sel := pricing.Selection{Mode: pricing.ModePayer, PayerID: "aetna", Table: table}

	out := e.Run("cbc", ix, sel)
	if v, ok := out.Results[0].Price.Value(); !ok || !v.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected negotiated 20, got %v", out.Results[0].Price)
	}

	out = e.Run("private room", ix, sel)
	if !out.Results[0].Price.IsUncontracted() {
		t.Errorf("Expected uncontracted, got %v", out.Results[0].Price)
	}

	// Missing gross charge is zero, not uncontracted
	out = e.Run("suture", ix, pricing.Selection{Mode: pricing.ModeGross})
	if v, ok := out.Results[0].Price.Value(); !ok || !v.IsZero() {
		t.Errorf("Expected zero gross, got %v", out.Results[0].Price)
	}
}

func TestRunPerUnitPrice(t *testing.T) {
	c := &entities.Catalog{Items: []entities.Item{
		{Description: "HEPARIN 5000 UNITS/ML", GrossCharge: gross(50),
			Drug: &entities.DrugPackage{UnitsPerPackage: 200, UnitType: "ME"}},
	}}
	out := NewEngine(0).Run("heparin", NewIndex(c), pricing.Selection{Mode: pricing.ModeGross})
	r := out.Results[0]
	if r.PerUnit == nil {
		t.Fatal("Expected per-unit price")
	}
	if r.PerUnit.String() != "$0.25/mg" {
		t.Errorf("PerUnit = %s", r.PerUnit)
	}
}

func TestFindNilIndex(t *testing.T) {
	var ix *Index
	if ix.Find([]string{"x"}, 10) != nil || ix.Len() != 0 || ix.Catalog() != nil {
		t.Error("Nil index should behave as empty")
	}
}

func TestDebouncerLastWins(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var fired atomic.Int32
	var last atomic.Uint64

	for i := 0; i < 5; i++ {
		d.Trigger(func(gen uint64) {
			fired.Add(1)
			last.Store(gen)
		})
		time.Sleep(2 * time.Millisecond)
	}
	if !d.Pending() {
		t.Error("Expected a pending evaluation")
	}

	time.Sleep(100 * time.Millisecond)

	if fired.Load() != 1 {
		t.Errorf("Expected exactly one evaluation, got %d", fired.Load())
	}
	if !d.Current(last.Load()) {
		t.Error("The evaluation that ran should be the latest trigger")
	}
	if d.Pending() {
		t.Error("Nothing should be pending after firing")
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	var fired atomic.Int32

	gen := d.Trigger(func(uint64) { fired.Add(1) })
	d.Cancel()

	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("Cancelled evaluation should not run")
	}
	if d.Current(gen) {
		t.Error("Cancelled generation should not be current")
	}
}
