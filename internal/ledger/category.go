// Package ledger folds trips and expenses into profit-and-loss records.
//
// Everything in this package is a pure function over an immutable snapshot of
// records: callers fetch once, then aggregate at whatever granularity they need.
// Dirty data never produces an error; it is counted in Record.Warnings instead.
package ledger

import "strings"

// Category is a fixed expense reporting category.
type Category string

const (
	CategoryFuel       Category = "Fuel"
	CategoryFood       Category = "Food"
	CategoryDriverBata Category = "Driver Bata"
	CategoryPoliceRTO  Category = "Police/RTO"
	CategoryAdBlue     Category = "AdBlue"
	CategoryOther      Category = "Other"
)

// reportOrder is the column order used by every report and export.
var reportOrder = []Category{
	CategoryFuel,
	CategoryFood,
	CategoryDriverBata,
	CategoryPoliceRTO,
	CategoryAdBlue,
	CategoryOther,
}

// Categories returns every category in report order.
func Categories() []Category {
	out := make([]Category, len(reportOrder))
	copy(out, reportOrder)
	return out
}

// synonyms maps normalized labels to their category. Keys must already be in
// the form produced by normalizeLabel.
var synonyms = map[string]Category{
	"fuel":   CategoryFuel,
	"diesel": CategoryFuel,
	"petrol": CategoryFuel,
	"cng":    CategoryFuel,
	"hsd":    CategoryFuel,

	"food":  CategoryFood,
	"meal":  CategoryFood,
	"meals": CategoryFood,
	"khana": CategoryFood,
	"tea":   CategoryFood,

	"driver bata":      CategoryDriverBata,
	"bata":             CategoryDriverBata,
	"driver allowance": CategoryDriverBata,

	"police rto":  CategoryPoliceRTO,
	"police":      CategoryPoliceRTO,
	"rto":         CategoryPoliceRTO,
	"challan":     CategoryPoliceRTO,
	"fine":        CategoryPoliceRTO,
	"police fine": CategoryPoliceRTO,
	"rto fine":    CategoryPoliceRTO,

	"adblue":  CategoryAdBlue,
	"ad blue": CategoryAdBlue,
	"def":     CategoryAdBlue,
	"urea":    CategoryAdBlue,

	"other": CategoryOther,
}

// Classify maps a free-form expense label to its report category.
// Matching ignores case, surrounding and repeated whitespace, and the
// separators "_", "-" and "/". Anything unrecognized is Other.
func Classify(label string) Category {
	if c, ok := synonyms[normalizeLabel(label)]; ok {
		return c
	}
	return CategoryOther
}

func normalizeLabel(label string) string {
	label = strings.ToLower(label)
	label = strings.NewReplacer("_", " ", "-", " ", "/", " ").Replace(label)
	return strings.Join(strings.Fields(label), " ")
}
