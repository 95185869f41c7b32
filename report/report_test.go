package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laha-editions/proforma/internal/proforma"
)

func printableDocument() proforma.Document {
	promo := "RENTREE26"
	return proforma.Document{
		ID:        uuid.New(),
		Number:    "PF-2026-000042",
		Recipient: proforma.SchoolRecipient("sch-1"),
		Items: []proforma.LineItem{{
			BookReference: "w-1",
			Title:         "Lecture <CP>",
			ISBN:          "978-2-01-000001-1",
			Quantity:      3,
			UnitPriceHT:   decimal.RequireFromString("1000"),
			DiscountRate:  decimal.RequireFromString("0.1"),
			TaxRate:       decimal.RequireFromString("0.18"),
			Amounts:       proforma.LineBreakdown{LineTTC: decimal.RequireFromString("3186")},
		}},
		Totals:     proforma.Totals{TotalTTC: decimal.RequireFromString("3186")},
		Status:     proforma.StatusSent,
		Currency:   "FCFA",
		PromoCode:  &promo,
		CreatedBy:  "u-1",
		CreatedAt:  time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		ValidUntil: time.Date(2026, 4, 9, 9, 0, 0, 0, time.UTC),
	}
}

func TestRendererHTML(t *testing.T) {
	r, err := NewRenderer(NewClient("http://unused"), Company{Name: "Éditions LAHA", Country: "Gabon"})
	require.NoError(t, err)

	html, err := r.HTML(printableDocument())
	require.NoError(t, err)
	page := string(html)

	assert.Contains(t, page, "Réf : PF-2026-000042")
	assert.Contains(t, page, "Envoyée")
	assert.Contains(t, page, "Type : École")
	assert.Contains(t, page, "Valable jusqu'au 09/04/2026")
	assert.Contains(t, page, "Lecture &lt;CP&gt;")
	assert.Contains(t, page, "10 %")
	assert.Contains(t, page, "18 %")
	assert.Contains(t, page, "RENTREE26")
}

func TestRendererPostsToGotenberg(t *testing.T) {
	var (
		gotPath  string
		gotFile  string
		gotPaper string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		gotPaper = r.FormValue("paperWidth")
		f, header, err := r.FormFile("files")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		gotFile = header.Filename
		body, _ := io.ReadAll(f)
		assert.Contains(t, string(body), "PF-2026-000042")
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	r, err := NewRenderer(NewClient(srv.URL+"/"), Company{Name: "Éditions LAHA"})
	require.NoError(t, err)

	pdf, err := r.Render(context.Background(), printableDocument())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(pdf))
	assert.Equal(t, "/forms/chromium/convert/html", gotPath)
	assert.Equal(t, "index.html", gotFile)
	assert.Equal(t, A4.PaperWidth, gotPaper)
}

func TestClientReportsGotenbergFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "chromium crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.RenderHTML(context.Background(), []byte("<html></html>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chromium crashed")
	assert.Error(t, c.Ping(context.Background()))
}
