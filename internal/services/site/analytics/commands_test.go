package analytics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/vitrine/internal/services/site/consent"
)

func TestDefaultConsentDeniesEverythingButSecurity(t *testing.T) {
	command := DefaultConsent()
	assert.Equal(t, "consent", command.Command)
	assert.Equal(t, "default", command.Action)
	assert.Equal(t, map[string]string{
		AnalyticsStorage:       Denied,
		AdStorage:              Denied,
		AdUserData:             Denied,
		AdPersonalization:      Denied,
		FunctionalityStorage:   Denied,
		PersonalizationStorage: Denied,
		SecurityStorage:        Granted,
	}, command.Params)
}

func TestUpdateForMapsCategories(t *testing.T) {
	record := consent.NecessaryOnly().With(consent.Analytics, true).With(consent.Functional, true)
	command := UpdateFor(record, true)
	assert.Equal(t, "update", command.Action)
	assert.Equal(t, Granted, command.Params[AnalyticsStorage])
	assert.Equal(t, Granted, command.Params[FunctionalityStorage])
	assert.Equal(t, Granted, command.Params[PersonalizationStorage])
	assert.Equal(t, Denied, command.Params[AdStorage])
	assert.Equal(t, Denied, command.Params[AdUserData])
	assert.Equal(t, Denied, command.Params[AdPersonalization])
	assert.Equal(t, Granted, command.Params[SecurityStorage])

	marketing := UpdateFor(consent.NecessaryOnly().With(consent.Marketing, true), true)
	assert.Equal(t, Granted, marketing.Params[AdStorage])
	assert.Equal(t, Denied, marketing.Params[AnalyticsStorage])
}

func TestUpdateForWithoutDecisionDenies(t *testing.T) {
	command := UpdateFor(consent.AllGranted(), false)
	for _, name := range command.SignalNames() {
		if name == SecurityStorage {
			continue
		}
		assert.Equal(t, Denied, command.Params[name], name)
	}
}

func TestDefaultConsentIsFreshEachCall(t *testing.T) {
	first := DefaultConsent()
	first.Params[AnalyticsStorage] = Granted
	assert.Equal(t, Denied, DefaultConsent().Params[AnalyticsStorage])
}

func TestCommandMarshalsAsArray(t *testing.T) {
	data, err := json.Marshal(Command{Command: "consent", Action: "update", Params: map[string]string{AdStorage: Granted}})
	require.NoError(t, err)
	assert.JSONEq(t, `["consent","update",{"ad_storage":"granted"}]`, string(data))
}
