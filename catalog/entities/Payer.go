package entities

// Payer is one entry of the payer directory.
type Payer struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	ItemCount   int    `json:"count"`
	DataLocator string `json:"file"`
}

// PayerFile is the wire shape of a payers.json entry.
type PayerFile struct {
	Name  string `json:"name"`
	File  string `json:"file"`
	Count int    `json:"count"`
}
