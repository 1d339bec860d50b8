package extractor

// Record is one extracted product observation prior to persistence.
// Optional fields are pointers so the persistence layer can distinguish
// "absent" from zero values.
type Record struct {
	SKU           string
	LidlProductID *string
	Name          string
	Price         float64
	OriginalPrice *float64
	Currency      string
	Discount      *string
	ImageURL      *string
	ProductURL    *string
	Category      *string
	Brand         *string
	Rating        *float64
	Availability  string
}

// Valid reports whether the record passes the acceptance rules shared by
// both extraction strategies: non-empty name and a positive price.
func (r *Record) Valid() bool {
	return r.Name != "" && r.Price > 0 && r.SKU != ""
}

// PaginationInfo describes the pagination state of one page.
type PaginationInfo struct {
	HasNext bool
}
