package orders

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
)

type Renderer interface {
	Render(w io.Writer, invoice *InvoiceData) error
}

// PDFRenderer lays out an A4 invoice. The document dates are pinned to the
// order date, so the same invoice always renders to the same bytes.
type PDFRenderer struct {
	StoreName string
}

func NewPDFRenderer(storeName string) *PDFRenderer {
	return &PDFRenderer{StoreName: storeName}
}

var columns = []struct {
	title string
	width float64
	align string
}{
	{"Title", 95, "L"},
	{"Qty", 20, "R"},
	{"Unit price", 35, "R"},
	{"Subtotal", 40, "R"},
}

func (p *PDFRenderer) Render(w io.Writer, invoice *InvoiceData) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(invoice.Date)
	pdf.SetModificationDate(invoice.Date)
	pdf.SetTitle("Invoice "+invoice.Number, true)
	pdf.SetAuthor(p.StoreName, true)

	// Core fonts are cp1252; book titles carry accents.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(p.StoreName), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, tr("Invoice: "+invoice.Number), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Order: #%d", invoice.OrderID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Date: "+invoice.Date.UTC().Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range columns {
		pdf.CellFormat(col.width, 8, col.title, "1", 0, col.align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 11)
	for _, item := range invoice.Items {
		cells := []string{
			tr(item.Title),
			fmt.Sprintf("%d", item.Quantity),
			item.UnitPrice.StringFixed(2),
			item.Subtotal().StringFixed(2),
		}
		for i, col := range columns {
			pdf.CellFormat(col.width, 8, cells[i], "1", 0, col.align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont("Helvetica", "B", 12)
	labelWidth := columns[0].width + columns[1].width + columns[2].width
	pdf.CellFormat(labelWidth, 10, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(columns[3].width, 10, invoice.Total.StringFixed(2), "1", 1, "R", false, 0, "")

	return pdf.Output(w)
}
