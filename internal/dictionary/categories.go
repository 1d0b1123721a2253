package dictionary

import "github.com/tinoosan/tripsettle/internal/ledger"

type CategoryDef struct {
	Code  ledger.Category `json:"code"`
	Label string          `json:"label"`
}

type SplitTypeDef struct {
	Code  ledger.SplitType `json:"code"`
	Label string           `json:"label"`
	// RequiresRatios marks split types that read split_ratios.
	RequiresRatios bool `json:"requires_ratios"`
}

var curatedCategories = []CategoryDef{
	{Code: ledger.CategoryGeneral, Label: "General"},
	{Code: ledger.CategoryLodging, Label: "Lodging"},
	{Code: ledger.CategoryFood, Label: "Food & Drinks"},
	{Code: ledger.CategoryTransport, Label: "Transport"},
	{Code: ledger.CategoryActivities, Label: "Activities"},
	{Code: ledger.CategoryShopping, Label: "Shopping"},
	{Code: ledger.CategoryFees, Label: "Fees"},
}

var splitTypes = []SplitTypeDef{
	{Code: ledger.SplitEqual, Label: "Split equally"},
	{Code: ledger.SplitPercentage, Label: "Split by percentage", RequiresRatios: true},
}

// Categories returns a copy of the curated expense categories in display order.
func Categories() []CategoryDef {
	out := make([]CategoryDef, len(curatedCategories))
	copy(out, curatedCategories)
	return out
}

func SplitTypes() []SplitTypeDef {
	out := make([]SplitTypeDef, len(splitTypes))
	copy(out, splitTypes)
	return out
}

// IsCategory reports whether c is a curated category. The empty category is
// accepted and treated as general by callers.
func IsCategory(c ledger.Category) bool {
	if c == "" {
		return true
	}
	for _, d := range curatedCategories {
		if d.Code == c {
			return true
		}
	}
	return false
}
