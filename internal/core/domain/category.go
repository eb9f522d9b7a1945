package domain

import "strings"

type Category string

const (
	CategoryEmployment  Category = "employment"
	CategoryRental      Category = "rental"
	CategoryNDA         Category = "nda"
	CategoryService     Category = "service"
	CategorySales       Category = "sales"
	CategoryPartnership Category = "partnership"
	CategoryLoan        Category = "loan"
	CategoryInsurance   Category = "insurance"
	CategoryOther       Category = "other"
)

var categories = map[Category]struct{}{
	CategoryEmployment:  {},
	CategoryRental:      {},
	CategoryNDA:         {},
	CategoryService:     {},
	CategorySales:       {},
	CategoryPartnership: {},
	CategoryLoan:        {},
	CategoryInsurance:   {},
	CategoryOther:       {},
}

// ParseCategory matches raw against the closed category set, ignoring case
// and surrounding whitespace.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := categories[c]
	return c, ok
}

// NormalizeCategory is the lossy variant used for inferred and stored values:
// unknown or empty input becomes CategoryOther.
func NormalizeCategory(raw string) Category {
	if c, ok := ParseCategory(raw); ok {
		return c
	}
	return CategoryOther
}
