package catalog

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestLoadEmbeddedHasSiteLocales(t *testing.T) {
	bundle, err := LoadEmbedded()
	require.NoError(t, err)
	assert.Equal(t, []string{"en-US", "fr-FR"}, bundle.Locales())

	value, ok := bundle.Message("fr-FR", "site.nav.home")
	require.True(t, ok)
	assert.Equal(t, "Accueil", value)
}

func TestEmbeddedLocalesShareKeys(t *testing.T) {
	bundle, err := LoadEmbedded()
	require.NoError(t, err)
	for key := range bundle.locales[BaseLocale] {
		_, ok := bundle.locales["fr-FR"][key]
		assert.True(t, ok, "fr-FR missing %s", key)
	}
}

func TestMessageFallsBackToBaseLocale(t *testing.T) {
	bundle, err := LoadFromFS(fstest.MapFS{
		"locales/en-US/site.yaml": {Data: []byte("locale: en-US\nnamespace: site\nmessages:\n  site.a: A\n  site.b: B\n")},
		"locales/fr-FR/site.yaml": {Data: []byte("locale: fr-FR\nnamespace: site\nmessages:\n  site.a: AA\n")},
	})
	require.NoError(t, err)

	value, ok := bundle.Message("fr-FR", "site.b")
	require.True(t, ok)
	assert.Equal(t, "B", value)

	_, ok = bundle.Message("fr-FR", "site.missing")
	assert.False(t, ok)
}

func TestPrinterUsesBundle(t *testing.T) {
	bundle, err := LoadFromFS(fstest.MapFS{
		"locales/en-US/blog.yaml": {Data: []byte("locale: en-US\nnamespace: blog\nmessages:\n  blog.published: \"Published %s\"\n")},
		"locales/fr-FR/blog.yaml": {Data: []byte("locale: fr-FR\nnamespace: blog\nmessages:\n  blog.published: \"Publié le %s\"\n")},
	})
	require.NoError(t, err)

	assert.Equal(t, "Publié le 3 mai", bundle.Printer(language.MustParse("fr-FR")).Sprintf("blog.published", "3 mai"))
	assert.Equal(t, "Published May 3", bundle.Printer(language.MustParse("en-US")).Sprintf("blog.published", "May 3"))
}

func TestLoadFromFSRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name  string
		files fstest.MapFS
	}{
		{
			name:  "empty",
			files: fstest.MapFS{},
		},
		{
			name: "missing base locale",
			files: fstest.MapFS{
				"locales/fr-FR/site.yaml": {Data: []byte("locale: fr-FR\nnamespace: site\nmessages:\n  site.a: A\n")},
			},
		},
		{
			name: "locale mismatch",
			files: fstest.MapFS{
				"locales/en-US/site.yaml": {Data: []byte("locale: fr-FR\nnamespace: site\nmessages:\n  site.a: A\n")},
			},
		},
		{
			name: "namespace mismatch",
			files: fstest.MapFS{
				"locales/en-US/site.yaml": {Data: []byte("locale: en-US\nnamespace: blog\nmessages:\n  blog.a: A\n")},
			},
		},
		{
			name: "key outside namespace",
			files: fstest.MapFS{
				"locales/en-US/site.yaml": {Data: []byte("locale: en-US\nnamespace: site\nmessages:\n  blog.a: A\n")},
			},
		},
		{
			name: "no messages",
			files: fstest.MapFS{
				"locales/en-US/site.yaml": {Data: []byte("locale: en-US\nnamespace: site\n")},
			},
		},
		{
			name: "bad yaml",
			files: fstest.MapFS{
				"locales/en-US/site.yaml": {Data: []byte("locale: [\n")},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromFS(tc.files)
			require.Error(t, err)
		})
	}
}

func TestNilBundleIsSafe(t *testing.T) {
	var bundle *Bundle
	assert.False(t, bundle.HasLocale(BaseLocale))
	assert.Nil(t, bundle.Locales())
	_, ok := bundle.Message(BaseLocale, "site.title")
	assert.False(t, ok)
}
