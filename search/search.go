// Package search implements the catalog lookup: every query term must occur
// as a substring of an item's description or codes. Results come back in
// catalog order and stop at the configured limit; there is no ranking.
package search

import (
	"strings"

	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/robbie-med/Sjprice/descparser"
	"github.com/robbie-med/Sjprice/pricing"
)

const (
	DefaultLimit   = 100
	MinQueryLength = 2
)

// Category groups results for display.
type Category string

const (
	CategoryPharmacy  Category = "pharmacy"
	CategoryRoom      Category = "room"
	CategoryProcedure Category = "procedure"
	CategorySupply    Category = "supply"
	CategoryOther     Category = "other"
)

// Classify assigns the first applicable category.
func Classify(item *entities.Item) Category {
	switch {
	case item.Drug != nil || item.HasCodeType("HCPCS"):
		return CategoryPharmacy
	case containsFold(item.Description, "room") || containsFold(item.Description, "bed"):
		return CategoryRoom
	case item.HasCodeType("CPT"):
		return CategoryProcedure
	case item.HasCodeType("RC"):
		return CategorySupply
	}
	return CategoryOther
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

// Index pairs a catalog with the lower-cased text each item is matched
// against. It is built once per loaded catalog.
type Index struct {
	catalog   *entities.Catalog
	haystacks []string
}

// NewIndex precomputes the match text of every item.
func NewIndex(c *entities.Catalog) *Index {
	ix := &Index{catalog: c, haystacks: make([]string, c.Len())}
	var b strings.Builder
	for i := range ix.haystacks {
		item := &c.Items[i]
		b.Reset()
		b.WriteString(item.Description)
		for _, code := range item.Codes {
			b.WriteByte(' ')
			b.WriteString(code.Value)
		}
		ix.haystacks[i] = strings.ToLower(b.String())
	}
	return ix
}

// Catalog returns the indexed catalog.
func (ix *Index) Catalog() *entities.Catalog {
	if ix == nil {
		return nil
	}
	return ix.catalog
}

// Len returns the number of indexed items.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.haystacks)
}

// Terms splits a query into lower-cased terms. It returns nil when the
// trimmed query is shorter than MinQueryLength.
func Terms(query string) []string {
	q := strings.TrimSpace(query)
	if len([]rune(q)) < MinQueryLength {
		return nil
	}
	return strings.Fields(strings.ToLower(q))
}

// Find returns the indexes of the first limit items matching every term, in
// catalog order.
func (ix *Index) Find(terms []string, limit int) []int {
	if ix == nil || len(terms) == 0 || limit <= 0 {
		return nil
	}

	var out []int
	for i, hay := range ix.haystacks {
		if matchesAll(hay, terms) {
			out = append(out, i)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

func matchesAll(hay string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(hay, t) {
			return false
		}
	}
	return true
}

// Result is one priced, classified search hit.
type Result struct {
	Index    int                           `json:"index"`
	Item     *entities.Item                `json:"item"`
	Category Category                      `json:"category"`
	Price    pricing.Price                 `json:"price"`
	PerUnit  *pricing.UnitPrice            `json:"per_unit,omitempty"`
	Parsed   *descparser.ParsedDescription `json:"parsed,omitempty"`
}

// Outcome is what presentation shows for a query. Prompt is set when the
// query is too short to run, which is different from a query with no hits.
// Capped is set when more matches exist than were returned.
type Outcome struct {
	Query   string   `json:"query"`
	Prompt  bool     `json:"prompt"`
	Results []Result `json:"results"`
	Capped  bool     `json:"capped"`
}

// Engine runs queries against an index.
type Engine struct {
	limit int
}

// NewEngine returns an engine returning at most limit results.
func NewEngine(limit int) *Engine {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Engine{limit: limit}
}

// Limit returns the maximum number of results per query.
func (e *Engine) Limit() int {
	return e.limit
}

// Run searches ix and prices each hit under sel. Pharmacy hits carry the
// parsed description used for dose/route/form badges.
func (e *Engine) Run(query string, ix *Index, sel pricing.Selection) Outcome {
	terms := Terms(query)
	if terms == nil {
		return Outcome{Query: query, Prompt: true}
	}

	indexes := ix.Find(terms, e.limit+1)
	capped := len(indexes) > e.limit
	if capped {
		indexes = indexes[:e.limit]
	}
	out := Outcome{
		Query:   query,
		Results: make([]Result, 0, len(indexes)),
		Capped:  capped,
	}

	items := ix.Catalog()
	for _, idx := range indexes {
		item := items.At(idx)
		r := Result{
			Index:    idx,
			Item:     item,
			Category: Classify(item),
			Price:    sel.Resolve(item, idx),
		}
		if amount, ok := r.Price.Value(); ok {
			if unit, ok := pricing.PerUnitPrice(item, amount); ok {
				r.PerUnit = &unit
			}
		}
		if r.Category == CategoryPharmacy {
			parsed := descparser.Parse(item.Description)
			if !parsed.IsEmpty() {
				r.Parsed = &parsed
			}
		}
		out.Results = append(out.Results, r)
	}
	return out
}
