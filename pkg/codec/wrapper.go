package codec

import (
	"bytes"
	_ "embed"
	"html/template"

	"github.com/Masterminds/sprig/v3"
)

// WrapperParams controls the HTML wrapper placed around an encoded body.
type WrapperParams struct {
	// FontSize in pixels; zero selects the default.
	FontSize int
}

var (
	wrapperTemplate = template.New("wrapper").Funcs(sprig.FuncMap())

	//go:embed templates/wrapper.html
	wrapperTemplateRaw string
)

func init() {
	if _, err := wrapperTemplate.Parse(wrapperTemplateRaw); err != nil {
		panic(err)
	}
}

// WrapHTML places an already escaped body inside a monospace <pre> block so
// mail clients keep its line breaks and show the tag markers as text.
func WrapHTML(encoded string, p WrapperParams) (string, error) {
	b := bytes.Buffer{}
	err := wrapperTemplate.Execute(&b, struct {
		Body     template.HTML
		FontSize int
	}{
		// #nosec G203 -- Encode has already escaped the body.
		Body:     template.HTML(encoded),
		FontSize: p.FontSize,
	})
	return b.String(), err
}
