package proforma

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecipientRequest is the wire form of a recipient in requests.
type RecipientRequest struct {
	Kind    string  `json:"kind" validate:"required,oneof=school partner client guest"`
	ID      string  `json:"id,omitempty" validate:"max=64"`
	Name    string  `json:"name,omitempty" validate:"max=200"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=300"`
	City    *string `json:"city,omitempty" validate:"omitempty,max=100"`
	Country *string `json:"country,omitempty" validate:"omitempty,max=100"`
}

// ItemRequest is one requested line.
type ItemRequest struct {
	BookReference string           `json:"book_reference" validate:"required,max=64"`
	Quantity      int              `json:"quantity" validate:"required,gte=1"`
	UnitPriceHT   *decimal.Decimal `json:"unit_price_ht,omitempty"`
	DiscountRate  *decimal.Decimal `json:"discount_rate,omitempty"`
	TaxRate       *decimal.Decimal `json:"tax_rate,omitempty"`
}

// CreateProformaRequest is the body of POST /api/proformas.
type CreateProformaRequest struct {
	Recipient         RecipientRequest `json:"recipient"`
	Items             []ItemRequest    `json:"items" validate:"dive"`
	PromoDiscountRate *decimal.Decimal `json:"promo_discount_rate,omitempty"`
	PromoCode         *string          `json:"promo_code,omitempty" validate:"omitempty,max=50"`
	ValidUntil        *time.Time       `json:"valid_until,omitempty"`
	Notes             *string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Currency          string           `json:"currency,omitempty" validate:"omitempty,max=10"`
	Country           string           `json:"country,omitempty" validate:"omitempty,max=100"`
	OrderType         *string          `json:"order_type,omitempty" validate:"omitempty,max=50"`
	InitialStatus     string           `json:"initial_status,omitempty" validate:"omitempty,oneof=DRAFT SENT"`
	CreatedBy         string           `json:"created_by" validate:"required,max=64"`
}

// UpdateDraftRequest is the body of PUT /api/proformas/{id}.
type UpdateDraftRequest struct {
	Items             *[]ItemRequest   `json:"items,omitempty" validate:"omitempty,dive"`
	PromoDiscountRate *decimal.Decimal `json:"promo_discount_rate,omitempty"`
	ClearPromo        bool             `json:"clear_promo,omitempty"`
	PromoCode         *string          `json:"promo_code,omitempty" validate:"omitempty,max=50"`
	ValidUntil        *time.Time       `json:"valid_until,omitempty"`
	Notes             *string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// TransitionRequest is the optional body of POST /api/proformas/{id}/{action}.
type TransitionRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// ProformaResponse wraps a document with the actions currently possible.
type ProformaResponse struct {
	Document
	AllowedActions []Action `json:"allowed_actions"`
	Warning        string   `json:"warning,omitempty"`
}

// ListResponse is the body of GET /api/proformas.
type ListResponse struct {
	Items []ProformaResponse `json:"items"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// ExpireResponse is the body of POST /api/proformas/expire.
type ExpireResponse struct {
	Expired int    `json:"expired"`
	Error   string `json:"error,omitempty"`
}

func (r RecipientRequest) toRecipient() (Recipient, error) {
	guest := GuestIdentity{
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		Address: r.Address,
		City:    r.City,
		Country: r.Country,
	}
	return NewRecipient(RecipientKind(r.Kind), r.ID, guest)
}

func (r ItemRequest) toInput() ItemInput {
	in := ItemInput{
		BookReference: r.BookReference,
		Quantity:      r.Quantity,
		UnitPriceHT:   r.UnitPriceHT,
		TaxRate:       r.TaxRate,
	}
	if r.DiscountRate != nil {
		in.DiscountRate = *r.DiscountRate
	}
	return in
}

func toItemInputs(items []ItemRequest) []ItemInput {
	out := make([]ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, item.toInput())
	}
	return out
}

func (r CreateProformaRequest) toInput() (CreateInput, error) {
	recipient, err := r.Recipient.toRecipient()
	if err != nil {
		return CreateInput{}, err
	}
	return CreateInput{
		Recipient:         recipient,
		Items:             toItemInputs(r.Items),
		PromoDiscountRate: r.PromoDiscountRate,
		PromoCode:         r.PromoCode,
		ValidUntil:        r.ValidUntil,
		Notes:             r.Notes,
		Currency:          r.Currency,
		Country:           r.Country,
		OrderType:         r.OrderType,
		InitialStatus:     Status(r.InitialStatus),
		CreatedBy:         r.CreatedBy,
	}, nil
}

func (r UpdateDraftRequest) toInput() UpdateDraftInput {
	in := UpdateDraftInput{
		PromoDiscountRate: r.PromoDiscountRate,
		ClearPromo:        r.ClearPromo,
		PromoCode:         r.PromoCode,
		ValidUntil:        r.ValidUntil,
		Notes:             r.Notes,
	}
	if r.Items != nil {
		items := toItemInputs(*r.Items)
		in.Items = &items
	}
	return in
}
