package consent

import (
	"encoding/json"
	"strings"
)

// StorageKey is the preference key holding the encoded Record.
const StorageKey = "cookie-consent"

// Record is the visitor's consent decision across every category. Necessary
// is always true for a stored record.
type Record struct {
	Necessary  bool `json:"necessary"`
	Functional bool `json:"functional"`
	Analytics  bool `json:"analytics"`
	ThirdParty bool `json:"thirdParty"`
	Marketing  bool `json:"marketing"`
}

// NecessaryOnly is the "reject all" decision.
func NecessaryOnly() Record {
	return Record{Necessary: true}
}

// AllGranted is the "accept all" decision.
func AllGranted() Record {
	return Record{Necessary: true, Functional: true, Analytics: true, ThirdParty: true, Marketing: true}
}

// Allows reports whether the record grants category.
func (r Record) Allows(category Category) bool {
	switch category {
	case Functional:
		return r.Functional
	case Analytics:
		return r.Analytics
	case Marketing:
		return r.Marketing
	case ThirdParty:
		return r.ThirdParty
	default:
		return false
	}
}

// With returns a copy of r with category set to granted.
func (r Record) With(category Category, granted bool) Record {
	switch category {
	case Functional:
		r.Functional = granted
	case Analytics:
		r.Analytics = granted
	case Marketing:
		r.Marketing = granted
	case ThirdParty:
		r.ThirdParty = granted
	}
	return r
}

// Encode serializes r for storage, forcing Necessary on.
func Encode(r Record) string {
	r.Necessary = true
	data, _ := json.Marshal(r)
	return string(data)
}

type wireRecord struct {
	Necessary  *bool `json:"necessary"`
	Functional *bool `json:"functional"`
	Analytics  *bool `json:"analytics"`
	ThirdParty *bool `json:"thirdParty"`
	Marketing  *bool `json:"marketing"`
}

// Decode parses a stored record. Anything that is not a complete record with
// necessary=true decodes as absent.
func Decode(raw string) (Record, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Record{}, false
	}
	var wire wireRecord
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return Record{}, false
	}
	if wire.Necessary == nil || wire.Functional == nil || wire.Analytics == nil ||
		wire.ThirdParty == nil || wire.Marketing == nil {
		return Record{}, false
	}
	if !*wire.Necessary {
		return Record{}, false
	}
	return Record{
		Necessary:  true,
		Functional: *wire.Functional,
		Analytics:  *wire.Analytics,
		ThirdParty: *wire.ThirdParty,
		Marketing:  *wire.Marketing,
	}, true
}
