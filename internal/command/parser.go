// Package command detects and parses the "commande:" micro-syntax the chat
// widget uses to capture order requests in free text.
package command

import (
	"regexp"
	"strings"
)

// DefaultUnit is stored when the payload does not specify a unit.
const DefaultUnit = "m²"

// orderPrefix matches the command token at the start of a trimmed message,
// e.g. "Commande:" or "commande :".
var orderPrefix = regexp.MustCompile(`(?i)^commande\s*:`)

// One pattern per alias, kept in listed order: the first alias that matches
// anywhere in the payload wins, even when a later alias appears earlier in
// the text. Values run up to the next comma or end of payload.
var (
	reName     = keyPatterns("nom", "name")
	rePhone    = keyPatterns("tel", "telephone", "phone")
	reProduct  = keyPatterns("produit", "product")
	reQuantity = keyPatterns("quantite", "qty")
	reUnit     = keyPatterns("unit", "unite")
	reNote     = keyPatterns("note")
)

func keyPatterns(aliases ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(aliases))
	for i, alias := range aliases {
		patterns[i] = regexp.MustCompile(`(?i)\b` + alias + `\b\s*=\s*([^,]*)`)
	}
	return patterns
}

// Draft holds the fields extracted from an order payload. Quantity is kept
// as the raw token; numeric coercion happens at the persistence boundary.
type Draft struct {
	CustomerName    string
	Phone           string
	ProductFilename string
	Quantity        string
	Unit            string
	Note            string
}

// IsOrder reports whether the trimmed message starts with the command token.
func IsOrder(message string) bool {
	return orderPrefix.MatchString(strings.TrimSpace(message))
}

// Payload strips the command token and returns the trimmed remainder.
func Payload(message string) string {
	return strings.TrimSpace(orderPrefix.ReplaceAllString(strings.TrimSpace(message), ""))
}

// Extract parses a "key = value, key = value" payload into a Draft.
// It returns false when the minimum fields are missing: an order needs a
// phone number or a product reference, anything less is treated as free
// text and handed back to the conversational path.
func Extract(payload string) (*Draft, bool) {
	d := &Draft{
		CustomerName:    field(reName, payload),
		Phone:           field(rePhone, payload),
		ProductFilename: field(reProduct, payload),
		Quantity:        field(reQuantity, payload),
		Unit:            field(reUnit, payload),
		Note:            field(reNote, payload),
	}
	if d.Unit == "" {
		d.Unit = DefaultUnit
	}
	if d.Phone == "" && d.ProductFilename == "" {
		return nil, false
	}
	return d, true
}

// Parse combines IsOrder and Extract: it returns the Draft for an order
// command, or false when the message is conversational or the payload does
// not qualify as an order.
func Parse(message string) (*Draft, bool) {
	if !IsOrder(message) {
		return nil, false
	}
	return Extract(Payload(message))
}

func field(patterns []*regexp.Regexp, payload string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(payload); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
