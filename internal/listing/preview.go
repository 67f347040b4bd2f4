package listing

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/lithammer/dedent"
)

var storePreviewTemplate = template.Must(template.New("store").Parse(strings.TrimSpace(dedent.Dedent(`
	{{.Title}}
	{{- if .Pricing}}

	Price: ₹{{.Pricing.AISuggested}} (minimum ₹{{.Pricing.MinAcceptable}})
	{{.Pricing.Reasoning}}
	{{- end}}

	Material: {{.Attributes.Material}}
	Dimensions: {{.Attributes.Dimensions}}
	Style: {{.Attributes.Style}}

	{{.Description}}
	{{- if .SEOBullets}}
	{{range .SEOBullets}}
	• {{.}}
	{{- end}}
	{{- end}}

	The story behind it
	{{.Story}}
	{{- if .Care}}

	Care instructions
	{{- range .Care}}
	- {{.}}
	{{- end}}
	{{- end}}
`))))

// RenderStorePreview renders the buyer-facing storefront page of a listing as
// plain text.
func RenderStorePreview(l ProductListing) (string, error) {
	var buf bytes.Buffer
	if err := storePreviewTemplate.Execute(&buf, l); err != nil {
		return "", fmt.Errorf("failed to render store preview: %w", err)
	}
	return buf.String(), nil
}
