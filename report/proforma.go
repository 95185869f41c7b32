package report

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/laha-editions/proforma/internal/notify"
	"github.com/laha-editions/proforma/internal/proforma"
)

//go:embed templates/proforma.html
var templatesFS embed.FS

// Company is the issuer block printed in the header.
type Company struct {
	Name    string
	Country string
	Address string
	Phone   string
	Email   string
}

var statusLabels = map[proforma.Status]string{
	proforma.StatusDraft:     "Brouillon",
	proforma.StatusSent:      "Envoyée",
	proforma.StatusAccepted:  "Acceptée",
	proforma.StatusExpired:   "Expirée",
	proforma.StatusCancelled: "Annulée",
}

var recipientLabels = map[proforma.RecipientKind]string{
	proforma.RecipientSchool:  "École",
	proforma.RecipientPartner: "Partenaire",
	proforma.RecipientClient:  "Client",
	proforma.RecipientGuest:   "Invité",
}

// Renderer prints proformas to PDF. It implements proforma.DocumentRenderer.
type Renderer struct {
	client  *Client
	company Company
	tmpl    *template.Template
}

// NewRenderer parses the embedded template.
func NewRenderer(client *Client, company Company) (*Renderer, error) {
	tmpl, err := template.New("proforma.html").Funcs(template.FuncMap{
		"percent": func(rate decimal.Decimal) string {
			return rate.Mul(decimal.NewFromInt(100)).Round(2).String() + " %"
		},
		"date": func(t time.Time) string { return t.Format("02/01/2006") },
	}).ParseFS(templatesFS, "templates/proforma.html")
	if err != nil {
		return nil, fmt.Errorf("report: parse template: %w", err)
	}
	return &Renderer{client: client, company: company, tmpl: tmpl}, nil
}

type lineView struct {
	Reference string
	Title     string
	Quantity  int
	UnitPrice string
	Discount  decimal.Decimal
	TaxRate   decimal.Decimal
	Total     string
}

type pageView struct {
	Company        Company
	Number         string
	Status         string
	IssuedAt       time.Time
	ValidUntil     time.Time
	RecipientType  string
	RecipientName  string
	RecipientEmail string
	CreatedBy      string
	Lines          []lineView
	SubtotalHT     string
	DiscountTotal  string
	TaxableBase    string
	TaxTotal       string
	TotalTTC       string
	PromoCode      string
	Notes          string
}

// HTML renders the printable page of doc.
func (r *Renderer) HTML(doc proforma.Document) ([]byte, error) {
	money := func(d decimal.Decimal) string { return notify.FormatAmount(d, doc.Currency) }
	view := pageView{
		Company:       r.company,
		Number:        doc.Number,
		Status:        statusLabels[doc.Status],
		IssuedAt:      doc.CreatedAt,
		ValidUntil:    doc.ValidUntil,
		RecipientType: recipientLabels[doc.Recipient.Kind()],
		RecipientName: doc.Recipient.DisplayName(),
		CreatedBy:     doc.CreatedBy,
		SubtotalHT:    money(doc.Totals.SubtotalHT),
		DiscountTotal: money(doc.Totals.DiscountTotal),
		TaxableBase:   money(doc.Totals.TaxableBase),
		TaxTotal:      money(doc.Totals.TaxTotal),
		TotalTTC:      money(doc.Totals.TotalTTC),
	}
	if guest, ok := doc.Recipient.Guest(); ok && guest.Email != nil {
		view.RecipientEmail = *guest.Email
	}
	if doc.PromoCode != nil {
		view.PromoCode = *doc.PromoCode
	}
	if doc.Notes != nil {
		view.Notes = *doc.Notes
	}
	for _, item := range doc.Items {
		ref := item.ISBN
		if ref == "" {
			ref = item.InternalCode
		}
		view.Lines = append(view.Lines, lineView{
			Reference: ref,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: money(item.UnitPriceHT),
			Discount:  item.DiscountRate,
			TaxRate:   item.TaxRate,
			Total:     money(item.Amounts.LineTTC),
		})
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("report: execute template: %w", err)
	}
	return buf.Bytes(), nil
}

// Render prints doc to PDF through Gotenberg.
func (r *Renderer) Render(ctx context.Context, doc proforma.Document) ([]byte, error) {
	html, err := r.HTML(doc)
	if err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, html)
}
