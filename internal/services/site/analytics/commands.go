// Package analytics decides when third-party analytics and marketing scripts
// may run, and tells the tag runtime what the visitor consented to.
package analytics

import (
	"encoding/json"
	"sort"

	"github.com/louisbranch/vitrine/internal/services/site/consent"
)

// Consent signal names understood by the tag runtime.
const (
	AnalyticsStorage       = "analytics_storage"
	AdStorage              = "ad_storage"
	AdUserData             = "ad_user_data"
	AdPersonalization      = "ad_personalization"
	FunctionalityStorage   = "functionality_storage"
	PersonalizationStorage = "personalization_storage"
	SecurityStorage        = "security_storage"

	Granted = "granted"
	Denied  = "denied"
)

// Command is one call queued for the tag runtime, for example
// ("consent", "update", {...}). It marshals as the JSON array the runtime's
// data layer expects.
type Command struct {
	Command string
	Action  string
	Params  map[string]string
}

// MarshalJSON encodes the command as [command, action, params].
func (c Command) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Command, c.Action, c.Params})
}

// DefaultConsent is pushed before any script loads: everything optional is
// denied and only security storage is granted.
func DefaultConsent() Command {
	return Command{
		Command: "consent",
		Action:  "default",
		Params: map[string]string{
			AnalyticsStorage:       Denied,
			AdStorage:              Denied,
			AdUserData:             Denied,
			AdPersonalization:      Denied,
			FunctionalityStorage:   Denied,
			PersonalizationStorage: Denied,
			SecurityStorage:        Granted,
		},
	}
}

// UpdateFor maps a consent decision onto the runtime's signals. Without a
// decision every optional signal stays denied.
func UpdateFor(record consent.Record, ok bool) Command {
	params := DefaultConsent().Params
	if ok {
		params[AnalyticsStorage] = state(record.Analytics)
		params[AdStorage] = state(record.Marketing)
		params[AdUserData] = state(record.Marketing)
		params[AdPersonalization] = state(record.Marketing)
		params[FunctionalityStorage] = state(record.Functional)
		params[PersonalizationStorage] = state(record.Functional)
	}
	return Command{Command: "consent", Action: "update", Params: params}
}

func state(granted bool) string {
	if granted {
		return Granted
	}
	return Denied
}

// SignalNames returns the param keys of c, sorted.
func (c Command) SignalNames() []string {
	names := make([]string, 0, len(c.Params))
	for name := range c.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Runtime is the tag manager's command queue.
type Runtime interface {
	Push(Command)
}

// RuntimeFunc adapts a function to Runtime.
type RuntimeFunc func(Command)

func (f RuntimeFunc) Push(c Command) { f(c) }
