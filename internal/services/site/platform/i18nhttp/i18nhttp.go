// Package i18nhttp resolves the request language for the site.
package i18nhttp

import (
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/message"

	"github.com/louisbranch/vitrine/internal/platform/i18n/catalog"
	"github.com/louisbranch/vitrine/internal/services/site/preferences"
)

const (
	// LangParam is the query parameter used to select a language.
	LangParam = "lang"
	// StorageKey is the preference key holding the chosen language. It is
	// functional state: only kept while functional consent is granted.
	StorageKey = "locale"
)

// Source says where a resolved language came from.
type Source uint8

const (
	SourceDefault Source = iota
	SourceQuery
	SourcePreference
	SourceHeader
)

// Resolution is the language picked for one request.
type Resolution struct {
	Tag    language.Tag
	Source Source
}

// Locale returns the catalog locale identifier.
func (r Resolution) Locale() string {
	return r.Tag.String()
}

// LanguageOption represents a supported language in the language switcher.
type LanguageOption struct {
	Tag    string
	Label  string
	URL    string
	Active bool
}

// Resolver matches requests against the loaded catalogs.
type Resolver struct {
	bundle    *catalog.Bundle
	supported []language.Tag
	matcher   language.Matcher
}

// NewResolver builds a resolver over bundle's locales.
func NewResolver(bundle *catalog.Bundle) *Resolver {
	supported := bundle.Tags()
	return &Resolver{
		bundle:    bundle,
		supported: supported,
		matcher:   language.NewMatcher(supported),
	}
}

// Default returns the fallback language.
func (r *Resolver) Default() language.Tag {
	return r.supported[0]
}

// Supported returns the supported languages, default first.
func (r *Resolver) Supported() []language.Tag {
	return append([]language.Tag(nil), r.supported...)
}

// Parse returns the supported tag for value. A bare language such as "fr"
// matches its supported regional variant.
func (r *Resolver) Parse(value string) (language.Tag, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return language.Und, false
	}
	tag, err := language.Parse(value)
	if err != nil {
		return language.Und, false
	}
	for _, supported := range r.supported {
		if supported == tag {
			return supported, true
		}
	}
	if _, index, confidence := r.matcher.Match(tag); confidence >= language.High {
		return r.supported[index], true
	}
	return language.Und, false
}

// Resolve picks the request language: the lang query parameter, then the
// stored preference, then Accept-Language, then the default. storage may be
// nil.
func (r *Resolver) Resolve(req *http.Request, storage preferences.Storage) Resolution {
	if req == nil {
		return Resolution{Tag: r.Default(), Source: SourceDefault}
	}
	if tag, ok := r.Parse(req.URL.Query().Get(LangParam)); ok {
		return Resolution{Tag: tag, Source: SourceQuery}
	}
	if storage != nil {
		if stored, ok, err := storage.Get(StorageKey); err == nil && ok {
			if tag, ok := r.Parse(stored); ok {
				return Resolution{Tag: tag, Source: SourcePreference}
			}
		}
	}
	if accept := strings.TrimSpace(req.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			if _, index, confidence := r.matcher.Match(tags...); confidence != language.No {
				return Resolution{Tag: r.supported[index], Source: SourceHeader}
			}
		}
	}
	return Resolution{Tag: r.Default(), Source: SourceDefault}
}

// Locale resolves the request language without stored preferences.
func (r *Resolver) Locale(req *http.Request) string {
	return r.Resolve(req, nil).Locale()
}

// Printer returns a message printer for tag.
func (r *Resolver) Printer(tag language.Tag) *message.Printer {
	return r.bundle.Printer(tag)
}

// Options returns the language switcher entries for the current URL.
func (r *Resolver) Options(active language.Tag, path, rawQuery string) []LanguageOption {
	options := make([]LanguageOption, 0, len(r.supported))
	for _, tag := range r.supported {
		label := display.Self.Name(tag)
		if label == "" {
			label = tag.String()
		}
		options = append(options, LanguageOption{
			Tag:    tag.String(),
			Label:  label,
			URL:    LanguageURL(path, rawQuery, tag.String()),
			Active: tag == active,
		})
	}
	return options
}

// LanguageURL returns the URL with the language param updated.
func LanguageURL(path, rawQuery, tag string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "/"
	}
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		query = url.Values{}
	}
	query.Set(LangParam, tag)
	return (&url.URL{Path: path, RawQuery: query.Encode()}).String()
}
