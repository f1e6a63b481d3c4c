// Package templates renders contract templates into HTML documents with signature zones.
//
// A template body is markdown with placeholders:
//
//	Buyer {{ parties.buyer.name }} offers {{ contract.price_cents }}
//	for {{ property.line1 }} (MLS {{ property.mls_number | not listed }}).
//
// Paths walk nested maps. Keys ending in _cents are formatted as dollars, times as
// "January 2, 2006". A placeholder without a value falls back to the text after "|" or
// to the configured MissingPolicy, and every unresolved path is reported in the result.
//
// RenderDocument substitutes values (HTML-escaped), converts the markdown with goldmark
// (GFM), estimates where the body ends and places one signature zone per signer on a
// grid below it, breaking to the next page when a row would cross the bottom margin.
//
// Built-in templates are YAML files loaded by a Library, which reloads them when the
// directory changes. Team templates live in Postgres behind Store, and creating one
// passes the team's plan template limit.
package templates
