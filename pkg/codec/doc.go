// Package codec converts structured document notices to and from mail bodies.
//
// Encoding fills a plain-text template and escapes it so the tag markers
// survive an HTML-rendering mail client as visible text. Decoding reverses the
// escaping, strips a narrow allow-list of presentation markup and extracts the
// nine tagged fields; it is all-or-nothing.
package codec
