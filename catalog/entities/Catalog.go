package entities

// Meta is the hospital header carried by the standard charges file.
type Meta struct {
	HospitalName       string `json:"hospital_name"`
	LastUpdatedOn      string `json:"last_updated_on"`
	Version            string `json:"version"`
	HospitalLocation   string `json:"hospital_location"`
	HospitalAddress    string `json:"hospital_address"`
	LicenseNumber      string `json:"license_number"`
	FinancialAidPolicy string `json:"financial_aid_policy"`
	BillingClass       string `json:"billing_class"`
}

// Catalog is the full ordered item sequence. An item's position in Items is
// its identifier for the lifetime of the catalog.
type Catalog struct {
	Meta  Meta   `json:"meta"`
	Items []Item `json:"items"`
}

// Len returns the number of items, zero for a nil catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// At returns the item at index, or nil when the index is out of range.
func (c *Catalog) At(index int) *Item {
	if c == nil || index < 0 || index >= len(c.Items) {
		return nil
	}
	return &c.Items[index]
}
