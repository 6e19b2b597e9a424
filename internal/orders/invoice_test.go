package orders

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/bookstore-api/internal/domain"
)

func sampleInvoice() *InvoiceData {
	items := []domain.OrderItem{
		{BookID: 7, Title: "Los ríos profundos", Quantity: 3, UnitPrice: decimal.RequireFromString("12.50")},
		{BookID: 2, Title: "La ciudad y los perros", Quantity: 1, UnitPrice: decimal.RequireFromString("45.00")},
	}
	return &InvoiceData{
		OrderID: 101,
		Number:  "F-20260305143015-3f2a9c1e",
		Date:    time.Date(2026, 3, 5, 14, 30, 15, 0, time.UTC),
		Items:   items,
		Total:   domain.Total(items),
	}
}

func TestPDFRenderer_Render(t *testing.T) {
	renderer := NewPDFRenderer("Bookstore")

	var first bytes.Buffer
	require.NoError(t, renderer.Render(&first, sampleInvoice()))
	assert.True(t, bytes.HasPrefix(first.Bytes(), []byte("%PDF-")))
	assert.Greater(t, first.Len(), 500)

	var second bytes.Buffer
	require.NoError(t, renderer.Render(&second, sampleInvoice()))
	assert.Equal(t, first.Bytes(), second.Bytes(), "same invoice must render identically")
}

func TestPDFRenderer_DifferentOrdersDiffer(t *testing.T) {
	renderer := NewPDFRenderer("Bookstore")

	other := sampleInvoice()
	other.Items = other.Items[:1]
	other.Total = domain.Total(other.Items)

	var a, b bytes.Buffer
	require.NoError(t, renderer.Render(&a, sampleInvoice()))
	require.NoError(t, renderer.Render(&b, other))
	assert.NotEqual(t, a.Bytes(), b.Bytes())
}
