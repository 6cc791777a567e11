package consent

// Category is an optional consent category. Necessary is implicit and never
// a Category.
type Category uint8

const (
	Functional Category = iota + 1
	Analytics
	Marketing
	ThirdParty
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{Functional, Analytics, Marketing, ThirdParty}
}

// String returns the record field name for the category.
func (c Category) String() string {
	switch c {
	case Functional:
		return "functional"
	case Analytics:
		return "analytics"
	case Marketing:
		return "marketing"
	case ThirdParty:
		return "thirdParty"
	default:
		return "unknown"
	}
}

// ParseCategory maps a record field name to its Category.
func ParseCategory(name string) (Category, bool) {
	for _, c := range Categories() {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}
