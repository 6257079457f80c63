// Package invoice renders an order as a paginated PDF document.
package invoice

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"order-bot/internal/domain"
)

const (
	fontFamily = "DejaVu"
	rowHeight  = 7.0
	margin     = 10.0
)

var (
	columnTitles = []string{"Code", "Item", "Name", "Qty", "Excl. VAT", "Incl. VAT", "Sum (€)"}
	columnWidths = []float64{32, 16, 78, 12, 17, 17, 18}
	columnAligns = []string{"L", "L", "L", "C", "C", "C", "C"}
)

// Row is one rendered line of the item table.
type Row struct {
	Code         string
	ExtraCode    string
	Name         string
	Qty          int
	PriceNoVAT   string
	PriceWithVAT string
	Sum          decimal.Decimal
}

// Summary is the computed table body and grand total.
type Summary struct {
	Rows  []Row
	Total decimal.Decimal
}

// Summarize computes per-line totals including VAT, stores them on the
// order's items and returns the table rows with the grand total.
func Summarize(o *domain.Order) Summary {
	s := Summary{Total: decimal.Zero}
	for i := range o.Items {
		item := &o.Items[i]
		sum := domain.LineTotal(item.PriceWithVAT, item.Qty)
		item.SumWithVAT = sum
		s.Total = s.Total.Add(sum)
		s.Rows = append(s.Rows, Row{
			Code:         orDefault(item.Code, "N/A"),
			ExtraCode:    item.ExtraCode,
			Name:         orDefault(item.Name, "Untitled"),
			Qty:          item.Qty,
			PriceNoVAT:   item.PriceNoVAT,
			PriceWithVAT: item.PriceWithVAT,
			Sum:          sum,
		})
	}
	return s
}

// Renderer draws orders with fpdf.
type Renderer struct {
	font []byte
}

// New creates a Renderer. fontPath points at a TTF with Cyrillic glyphs; when
// empty the core Helvetica font is used with a cp1252 translation.
func New(fontPath string) (*Renderer, error) {
	r := &Renderer{}
	if fontPath == "" {
		return r, nil
	}
	font, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("invoice: read font %s: %w", fontPath, err)
	}
	r.font = font
	return r, nil
}

// Render writes the PDF for o to w. Only the cached line totals of o change.
func (r *Renderer) Render(o *domain.Order, w io.Writer) error {
	if o == nil {
		return fmt.Errorf("invoice: order must not be nil")
	}
	pdf := r.build(o)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("invoice: output: %w", err)
	}
	return nil
}

func (r *Renderer) build(o *domain.Order) *fpdf.Fpdf {
	summary := Summarize(o)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	tr := func(s string) string { return s }
	family := "Helvetica"
	if len(r.font) > 0 {
		pdf.AddUTF8FontFromBytes(fontFamily, "", r.font)
		family = fontFamily
	} else {
		tr = pdf.UnicodeTranslatorFromDescriptor("")
	}
	pdf.SetTitle("Order", true)
	pdf.AddPage()

	pdf.SetFont(family, "", 16)
	pdf.CellFormat(0, 10, tr("Order"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(family, "", 10)
	info := [][2]string{
		{"Manager:", o.Manager},
		{"Client:", o.Client},
		{"Delivery date:", o.DeliveryDate},
		{"Address:", o.DeliveryAddress},
		{"Note:", o.Note},
	}
	for _, kv := range info {
		pdf.CellFormat(35, 6, tr(kv[0]), "", 0, "R", false, 0, "")
		pdf.MultiCell(0, 6, tr(" "+kv[1]), "", "L", false)
	}
	pdf.Ln(5)

	pdf.SetFont(family, "", 9)
	pdf.SetDrawColor(128, 128, 128)
	drawTableHeader(pdf, tr)
	_, pageH := pdf.GetPageSize()
	for i, row := range summary.Rows {
		if pdf.GetY()+rowHeight > pageH-margin {
			pdf.AddPage()
			drawTableHeader(pdf, tr)
		}
		if i%2 == 0 {
			pdf.SetFillColor(245, 245, 245)
		} else {
			pdf.SetFillColor(211, 211, 211)
		}
		cells := []string{
			row.Code,
			row.ExtraCode,
			row.Name,
			strconv.Itoa(row.Qty),
			row.PriceNoVAT,
			row.PriceWithVAT,
			row.Sum.StringFixed(2),
		}
		for c, text := range cells {
			pdf.CellFormat(columnWidths[c], rowHeight, fit(pdf, tr, text, columnWidths[c]-2), "1", 0, columnAligns[c], true, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(5)

	pdf.SetFont(family, "", 10)
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("Order total: %s €", summary.Total.StringFixed(2))), "", 1, "L", false, 0, "")
	return pdf
}

func drawTableHeader(pdf *fpdf.Fpdf, tr func(string) string) {
	pdf.SetFillColor(74, 144, 226)
	pdf.SetTextColor(255, 255, 255)
	for i, title := range columnTitles {
		pdf.CellFormat(columnWidths[i], rowHeight, tr(title), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetTextColor(0, 0, 0)
}

// fit shortens s until its translated form fits in width.
func fit(pdf *fpdf.Fpdf, tr func(string) string, s string, width float64) string {
	if pdf.GetStringWidth(tr(s)) <= width {
		return tr(s)
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(tr(string(runes)+"...")) > width {
		runes = runes[:len(runes)-1]
	}
	return tr(string(runes) + "...")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
