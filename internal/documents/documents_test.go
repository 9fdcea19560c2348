package documents

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureConverter struct {
	html string
}

func (c *captureConverter) RenderHTML(_ context.Context, html string) ([]byte, error) {
	c.html = html
	return []byte("%PDF-1.7"), nil
}

func sampleDocument() Document {
	return Document{
		Number:    "INV-001/JKT/10-2026",
		Status:    "UNPAID",
		Meta:      []Field{{Label: "Customer", Value: "#42"}},
		Columns:   []string{"Product", "Qty", "Total"},
		Rows:      [][]string{{"#7", "1,200", "12,000.00"}},
		Totals:    []Field{{Label: "Total", Value: "12,000.00"}},
		PrintedAt: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1,234,567.89", FormatAmount(decimal.RequireFromString("1234567.885")))
	assert.Equal(t, "0.50", FormatAmount(decimal.RequireFromString("0.5")))
	assert.Equal(t, "-0.25", FormatAmount(decimal.RequireFromString("-0.25")))
	assert.Equal(t, "-1,000.00", FormatAmount(decimal.NewFromInt(-1000)))
	assert.Equal(t, "12,000", FormatQuantity(12000))
}

func TestGotenbergRendererExecutesTemplate(t *testing.T) {
	conv := &captureConverter{}
	r, err := NewGotenbergRenderer(conv)
	require.NoError(t, err)

	pdf, err := r.RenderPDF(context.Background(), TemplateInvoice, sampleDocument())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(pdf))
	assert.Contains(t, conv.html, "<h1>Invoice</h1>")
	assert.Contains(t, conv.html, "INV-001/JKT/10-2026")
	assert.Contains(t, conv.html, "<td>12,000.00</td>")
	assert.Contains(t, conv.html, "01 Oct 2026")

	html, err := r.RenderHTML(TemplatePickingList, sampleDocument())
	require.NoError(t, err)
	assert.True(t, strings.Contains(html, "Picked by"))

	_, err = r.RenderPDF(context.Background(), Template("quote"), sampleDocument())
	require.Error(t, err)
}

func TestMarotoRendererProducesPDF(t *testing.T) {
	pdf, err := NewMarotoRenderer().RenderPDF(context.Background(), TemplateDeliveryOrder, sampleDocument())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF"))
}

type slowRenderer struct {
	calls   atomic.Int32
	release chan struct{}
}

func (s *slowRenderer) RenderPDF(context.Context, Template, Document) ([]byte, error) {
	s.calls.Add(1)
	<-s.release
	return []byte("pdf"), nil
}

func TestDedupCollapsesConcurrentRenders(t *testing.T) {
	slow := &slowRenderer{release: make(chan struct{})}
	r := Dedup(slow)
	doc := sampleDocument()

	var wg sync.WaitGroup
	started := make(chan struct{}, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			out, err := r.RenderPDF(context.Background(), TemplateInvoice, doc)
			assert.NoError(t, err)
			assert.Equal(t, "pdf", string(out))
		}()
	}
	for i := 0; i < 4; i++ {
		<-started
	}
	time.Sleep(50 * time.Millisecond)
	close(slow.release)
	wg.Wait()
	assert.Equal(t, int32(1), slow.calls.Load())
}

func TestNewSelectsBackend(t *testing.T) {
	_, err := New("gotenberg", "")
	require.Error(t, err)
	r, err := New("maroto", "")
	require.NoError(t, err)
	assert.NotNil(t, r)
	_, err = New("wkhtml", "")
	require.Error(t, err)
}
