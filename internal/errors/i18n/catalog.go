// Package i18n holds locale catalogs for user-facing error messages.
package i18n

import (
	"strings"
	"text/template"

	"golang.org/x/text/language"
)

// Code mirrors the machine-readable error code type as a plain string.
type Code = string

// Catalog maps error codes to localized message templates.
type Catalog struct {
	locale   string
	messages map[Code]string
}

// Locale returns the catalog's BCP 47 locale identifier.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the message for code, substituting metadata into the
// template placeholders. Unknown codes fall back to a generic message.
func (c *Catalog) Format(code string, metadata map[string]string) string {
	msg, ok := c.messages[code]
	if !ok {
		return "An unexpected error occurred"
	}
	if len(metadata) == 0 || !strings.Contains(msg, "{{") {
		return msg
	}
	tmpl, err := template.New(code).Parse(msg)
	if err != nil {
		return msg
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, metadata); err != nil {
		return msg
	}
	return b.String()
}

var catalogs = []*Catalog{enUSCatalog}

var matcher = language.NewMatcher([]language.Tag{
	language.AmericanEnglish,
})

// GetCatalog returns the best catalog for the requested locale,
// defaulting to en-US when the locale is unknown or unsupported.
func GetCatalog(locale string) *Catalog {
	tag, err := language.Parse(locale)
	if err != nil {
		return enUSCatalog
	}
	_, index, _ := matcher.Match(tag)
	return catalogs[index]
}
