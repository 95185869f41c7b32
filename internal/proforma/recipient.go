package proforma

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RecipientKind discriminates the recipient union.
type RecipientKind string

const (
	RecipientSchool  RecipientKind = "school"
	RecipientPartner RecipientKind = "partner"
	RecipientClient  RecipientKind = "client"
	RecipientGuest   RecipientKind = "guest"
)

// GuestIdentity is the free-form snapshot kept for unregistered recipients.
type GuestIdentity struct {
	Name    string  `json:"name"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
	City    *string `json:"city,omitempty"`
	Country *string `json:"country,omitempty"`
}

// Recipient is exactly one of a registered school, partner, client, or a
// guest snapshot. Build it with the constructors; the zero value is invalid.
type Recipient struct {
	kind  RecipientKind
	id    string
	guest *GuestIdentity
}

// SchoolRecipient addresses a registered school.
func SchoolRecipient(id string) Recipient {
	return Recipient{kind: RecipientSchool, id: strings.TrimSpace(id)}
}

// PartnerRecipient addresses a registered partner.
func PartnerRecipient(id string) Recipient {
	return Recipient{kind: RecipientPartner, id: strings.TrimSpace(id)}
}

// ClientRecipient addresses a registered client.
func ClientRecipient(id string) Recipient {
	return Recipient{kind: RecipientClient, id: strings.TrimSpace(id)}
}

// GuestRecipient addresses an unregistered recipient.
func GuestRecipient(identity GuestIdentity) Recipient {
	g := identity
	g.Name = strings.TrimSpace(g.Name)
	g.Email = trimmedOrNil(g.Email)
	g.Phone = trimmedOrNil(g.Phone)
	g.Address = trimmedOrNil(g.Address)
	g.City = trimmedOrNil(g.City)
	g.Country = trimmedOrNil(g.Country)
	return Recipient{kind: RecipientGuest, guest: &g}
}

// Kind returns the discriminator.
func (r Recipient) Kind() RecipientKind { return r.kind }

// ID returns the directory identifier of a registered recipient.
func (r Recipient) ID() (string, bool) {
	if r.kind == RecipientGuest || r.kind == "" {
		return "", false
	}
	return r.id, true
}

// Guest returns the guest snapshot.
func (r Recipient) Guest() (GuestIdentity, bool) {
	if r.kind != RecipientGuest || r.guest == nil {
		return GuestIdentity{}, false
	}
	return *r.guest, true
}

// DisplayName is the best human label available without a directory lookup.
func (r Recipient) DisplayName() string {
	if g, ok := r.Guest(); ok {
		return g.Name
	}
	return string(r.kind) + ":" + r.id
}

// Validate rejects the zero value and incomplete variants.
func (r Recipient) Validate() error {
	switch r.kind {
	case RecipientSchool, RecipientPartner, RecipientClient:
		if r.id == "" {
			return fmt.Errorf("%w: %s id is required", ErrMissingRecipient, r.kind)
		}
	case RecipientGuest:
		if r.guest == nil || r.guest.Name == "" {
			return fmt.Errorf("%w: guest name is required", ErrMissingRecipient)
		}
	case "":
		return ErrMissingRecipient
	default:
		return fmt.Errorf("%w: unknown recipient kind %q", ErrMissingRecipient, r.kind)
	}
	return nil
}

type recipientWire struct {
	Kind RecipientKind `json:"kind"`
	ID   string        `json:"id,omitempty"`
	GuestIdentity
}

// MarshalJSON encodes the union as {"kind": ..., "id": ...} or
// {"kind": "guest", "name": ...}.
func (r Recipient) MarshalJSON() ([]byte, error) {
	if r.kind == RecipientGuest && r.guest != nil {
		return json.Marshal(recipientWire{Kind: r.kind, GuestIdentity: *r.guest})
	}
	return json.Marshal(struct {
		Kind RecipientKind `json:"kind"`
		ID   string        `json:"id"`
	}{r.kind, r.id})
}

// UnmarshalJSON decodes the union and rejects mixed variants.
func (r *Recipient) UnmarshalJSON(data []byte) error {
	var wire recipientWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	decoded, err := NewRecipient(wire.Kind, wire.ID, wire.GuestIdentity)
	if err != nil {
		return err
	}
	*r = decoded
	return nil
}

// NewRecipient builds a recipient from loosely typed input such as a request
// body. A registered kind with guest fields, or a guest with an id, is rejected.
func NewRecipient(kind RecipientKind, id string, guest GuestIdentity) (Recipient, error) {
	var r Recipient
	switch kind {
	case RecipientSchool, RecipientPartner, RecipientClient:
		if guest != (GuestIdentity{}) {
			return Recipient{}, fmt.Errorf("%w: %s recipient cannot carry guest details", ErrValidation, kind)
		}
		r = Recipient{kind: kind, id: strings.TrimSpace(id)}
	case RecipientGuest:
		if strings.TrimSpace(id) != "" {
			return Recipient{}, fmt.Errorf("%w: guest recipient cannot carry an id", ErrValidation)
		}
		r = GuestRecipient(guest)
	default:
		r = Recipient{kind: kind}
	}
	if err := r.Validate(); err != nil {
		return Recipient{}, err
	}
	return r, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
