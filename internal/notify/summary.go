package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"order-bot/internal/domain"
)

const plainNameWidth = 45

// PlainSummary is the text/plain body of the order email.
func PlainSummary(o domain.Order) string {
	lines := []string{
		"New order!",
		"Manager: " + o.Manager,
		"Client: " + o.Client,
		"Delivery date: " + o.DeliveryDate,
		"Address: " + o.DeliveryAddress,
		"Note: " + o.Note,
		"",
		"Products:",
	}
	for _, item := range o.Items {
		lines = append(lines, fmt.Sprintf("%s | %s | %s | %d",
			orNA(item.Code), item.ExtraCode, padName(item.Name), item.Qty))
	}
	lines = append(lines, "", "Total incl. VAT: "+o.Total().StringFixed(2)+" €")
	return strings.Join(lines, "\n")
}

var htmlTemplate = template.Must(template.New("order").Parse(`<html>
  <body>
    <h2>📦 New order from manager {{.Manager}}</h2>
    <p><strong>Client:</strong> {{.Client}}<br>
       <strong>Address:</strong> {{.DeliveryAddress}}<br>
       <strong>Date:</strong> {{.DeliveryDate}}<br>
       <strong>Note:</strong> {{.Note}}</p>
    <h3>Order contents:</h3>
    <table border="1" cellpadding="6" cellspacing="0" style="border-collapse: collapse;">
      <tr style="background:#f2f2f2;"><th>Code</th><th>Item</th><th>Name</th><th>Qty</th><th>Sum (€)</th></tr>
      {{- range .Items}}
      <tr><td>{{if .Code}}{{.Code}}{{else}}N/A{{end}}</td><td>{{.ExtraCode}}</td><td>{{.Name}}</td><td style="text-align:center">{{.Qty}}</td><td style="text-align:right">{{.SumWithVAT.StringFixed 2}}</td></tr>
      {{- end}}
    </table>
    <p><strong>Total incl. VAT:</strong> {{.Total.StringFixed 2}} €</p>
  </body>
</html>
`))

// HTMLSummary is the text/html alternative body. User input is escaped.
func HTMLSummary(o domain.Order) (string, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, o); err != nil {
		return "", fmt.Errorf("notify: render html: %w", err)
	}
	return buf.String(), nil
}

func padName(name string) string {
	r := []rune(name)
	if len(r) > plainNameWidth {
		r = r[:plainNameWidth]
	}
	return string(r) + strings.Repeat(" ", plainNameWidth-len(r))
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
