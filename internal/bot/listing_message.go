package bot

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/lithammer/dedent"
	"github.com/raine/kalamitra/internal/listing"
)

var listingMessageTemplate = template.Must(template.New("listing").Funcs(template.FuncMap{
	"md": escapeMarkdown,
	"hours": func(h float64) string {
		return strconv.FormatFloat(h, 'f', -1, 64)
	},
}).Parse(strings.TrimSpace(dedent.Dedent(`
	*{{md .Title}}*
	{{- with .Pricing}}

	💰 *₹{{.AISuggested}}* (minimum ₹{{.MinAcceptable}})
	{{md .Reasoning}}
	{{- end}}

	{{md .Description}}
	{{- if .SEOBullets}}
	{{range .SEOBullets}}
	• {{md .}}
	{{- end}}
	{{- end}}

	*Material:* {{md .Attributes.Material}}
	*Dimensions:* {{md .Attributes.Dimensions}}
	*Style:* {{md .Attributes.Style}}
	*Time to make:* ~{{hours .Attributes.TimeToMakeHrs}} hours

	*Story*
	{{md .Story}}
	{{- if .Care}}

	*Care*
	{{- range .Care}}
	- {{md .}}
	{{- end}}
	{{- end}}
`))))

// formatListingMessage renders a generated listing as a Markdown message.
func formatListingMessage(l *listing.ProductListing) (string, error) {
	var buf bytes.Buffer
	if err := listingMessageTemplate.Execute(&buf, l); err != nil {
		return "", fmt.Errorf("failed to render listing message: %w", err)
	}
	buf.WriteString("\n\n")
	buf.WriteString(MsgListingHint)
	return buf.String(), nil
}
