package types

import (
	"database/sql/driver"

	"github.com/shopspring/decimal"
)

// Address is the service location captured on a booking.
type Address struct {
	Line1      string   `json:"line1" validate:"required"`
	Line2      *string  `json:"line2,omitempty"`
	City       string   `json:"city" validate:"required"`
	State      string   `json:"state"`
	PostalCode string   `json:"postal_code" validate:"required"`
	Location   GeoPoint `json:"location" validate:"required"`
}

// ServiceItem is a single line item of a booking.
type ServiceItem struct {
	ServiceID        string          `json:"service_id" validate:"required"`
	Name             string          `json:"name"`
	Quantity         int             `json:"quantity" validate:"gte=1"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	EstimatedMinutes int             `json:"estimated_minutes"`
}

// Subtotal returns quantity times unit price.
func (i ServiceItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ServiceItems persists as a JSON array.
type ServiceItems []ServiceItem

// BaseAmount sums every line subtotal.
func (s ServiceItems) BaseAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s {
		total = total.Add(item.Subtotal())
	}
	return total
}

// EstimatedMinutes sums the per-item estimate scaled by quantity.
func (s ServiceItems) EstimatedMinutes() int {
	total := 0
	for _, item := range s {
		total += item.EstimatedMinutes * item.Quantity
	}
	return total
}

// Value marshals the items into JSON.
func (s ServiceItems) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return jsonValue([]ServiceItem(s))
}

// Scan decodes JSON into the items.
func (s *ServiceItems) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var decoded []ServiceItem
	if err := scanJSON("service items", value, &decoded); err != nil {
		return err
	}
	*s = decoded
	return nil
}

// UserSnapshot freezes the requesting user's contact details at booking time.
type UserSnapshot struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Address Address `json:"address"`
}

// Value marshals the snapshot into JSON.
func (u UserSnapshot) Value() (driver.Value, error) {
	return jsonValue(u)
}

// Scan decodes JSON into the snapshot.
func (u *UserSnapshot) Scan(value interface{}) error {
	if value == nil {
		*u = UserSnapshot{}
		return nil
	}
	var decoded UserSnapshot
	if err := scanJSON("user snapshot", value, &decoded); err != nil {
		return err
	}
	*u = decoded
	return nil
}

// Feedback is a single rating left for a partner.
type Feedback struct {
	BookingID string `json:"booking_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment,omitempty"`
}

// maxRollingFeedback bounds the feedback kept on a partner snapshot.
const maxRollingFeedback = 20

// PartnerSnapshot is the assigned partner as seen from the booking.
// An empty ID means no partner is bound.
type PartnerSnapshot struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Phone    string        `json:"phone"`
	Location *LiveLocation `json:"location,omitempty"`
	Feedback []Feedback    `json:"feedback,omitempty"`
}

// IsZero reports whether no partner is bound.
func (p PartnerSnapshot) IsZero() bool {
	return p.ID == ""
}

// AppendFeedback adds fb, keeping only the most recent entries and at most one per booking.
func (p *PartnerSnapshot) AppendFeedback(fb Feedback) bool {
	for _, existing := range p.Feedback {
		if existing.BookingID == fb.BookingID {
			return false
		}
	}
	p.Feedback = append(p.Feedback, fb)
	if len(p.Feedback) > maxRollingFeedback {
		p.Feedback = p.Feedback[len(p.Feedback)-maxRollingFeedback:]
	}
	return true
}

// Value marshals the snapshot into JSON, storing NULL when unbound.
func (p PartnerSnapshot) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	return jsonValue(p)
}

// Scan decodes JSON into the snapshot.
func (p *PartnerSnapshot) Scan(value interface{}) error {
	if value == nil {
		*p = PartnerSnapshot{}
		return nil
	}
	var decoded PartnerSnapshot
	if err := scanJSON("partner snapshot", value, &decoded); err != nil {
		return err
	}
	*p = decoded
	return nil
}
