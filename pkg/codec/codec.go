package codec

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/docmail/docmail/pkg/document"
)

//go:embed templates/document.txt
var defaultTemplate string

// presentationMarkup is the allow-list of wrapper markup removed before field
// extraction. It must never match the semantic tags (DOC, DOCNUMBER, ...), so
// the p pattern only accepts a bare <p>, </p> or <p attr...>. Style blocks are
// removed together with their body so CSS rules never leak into values.
var presentationMarkup = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<style[^>]*>.*?</style\s*>`),
	regexp.MustCompile(`(?i)</?(?:html|head|body|pre|div|span|p)(?:\s[^>]*)?/?>`),
	regexp.MustCompile(`(?i)<meta[^>]*>`),
	regexp.MustCompile(`\\[rn]`),
}

// Codec encodes documents with a fixed template and decodes mail bodies.
type Codec struct {
	template string
}

// New returns a codec using the given template. An empty template selects the
// built-in one.
func New(template string) *Codec {
	if template == "" {
		template = defaultTemplate
	}
	return &Codec{template: template}
}

// NewFromFile loads the template from path.
func NewFromFile(path string) (*Codec, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document template %s: %w", path, err)
	}
	return New(string(content)), nil
}

// Default returns a codec using the built-in template.
func Default() *Codec {
	return New("")
}

// Template returns the raw template text.
func (c *Codec) Template() string {
	return c.template
}

// Encode substitutes every {fieldName} placeholder and escapes the result.
// Missing fields substitute as empty strings.
func (c *Codec) Encode(fields document.Fields) string {
	body := placeholderReplacer(fields).Replace(c.template)
	return html.EscapeString(body)
}

// Decode extracts a document from a raw mail body. It reports false when the
// body is not a complete structured document.
func (c *Codec) Decode(rawBody string) (document.Document, bool) {
	return Decode(rawBody)
}

// placeholderReplacer substitutes all placeholders in a single pass, so a value
// that itself looks like a placeholder is never expanded again.
func placeholderReplacer(fields document.Fields) *strings.Replacer {
	pairs := make([]string, 0, 2*len(document.Specs))
	for _, spec := range document.Specs {
		pairs = append(pairs, "{"+spec.Name+"}", fields[spec.Name])
	}
	return strings.NewReplacer(pairs...)
}

// Decode extracts a document from a raw mail body. The steps run in a fixed
// order: unescape, strip presentation markup, require the DOC envelope, then
// extract all nine fields. Any missing field, or an empty docNumber, rejects
// the whole body.
func Decode(rawBody string) (document.Document, bool) {
	text := StripPresentation(html.UnescapeString(rawBody))

	if !strings.Contains(text, "<"+document.Envelope+">") || !strings.Contains(text, "</"+document.Envelope+">") {
		return document.Document{}, false
	}

	lower := asciiLower(text)
	fields := make(document.Fields, len(document.Specs))
	for _, spec := range document.Specs {
		value, ok := extractTag(text, lower, spec.Tag)
		if !ok {
			return document.Document{}, false
		}
		fields[spec.Name] = value
	}

	if fields[document.FieldDocNumber] == "" {
		return document.Document{}, false
	}
	return document.FromFields(fields), true
}

// StripPresentation removes the presentation allow-list from text.
func StripPresentation(text string) string {
	for _, re := range presentationMarkup {
		text = re.ReplaceAllString(text, "")
	}
	return text
}

// extractTag returns the trimmed content of the shortest span between the
// first <tag> and the first </tag> after it. lower must be asciiLower(text) so
// byte offsets line up. Nested or repeated tags of the same name are not
// supported: the first close marker always bounds the value.
func extractTag(text, lower, tag string) (string, bool) {
	open := "<" + asciiLower(tag) + ">"
	closing := "</" + asciiLower(tag) + ">"

	i := strings.Index(lower, open)
	if i < 0 {
		return "", false
	}
	start := i + len(open)
	j := strings.Index(lower[start:], closing)
	if j < 0 {
		return "", false
	}
	return strings.TrimSpace(text[start : start+j]), true
}

// asciiLower lowercases A-Z only, keeping the byte length of s unchanged.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
