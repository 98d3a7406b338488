package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// MailingAddress is an applicant's postal address, stored as jsonb.
type MailingAddress struct {
	Line1      string  `json:"line1" validate:"required,max=200"`
	Line2      *string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City       string  `json:"city" validate:"required,max=100"`
	State      string  `json:"state" validate:"required,max=100"`
	PostalCode string  `json:"postal_code" validate:"required,max=20"`
	Country    string  `json:"country,omitempty" validate:"omitempty,max=2"`
}

// Normalize trims fields and defaults the country code.
func (a MailingAddress) Normalize() MailingAddress {
	out := MailingAddress{
		Line1:      strings.TrimSpace(a.Line1),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
	}
	if a.Line2 != nil {
		if line2 := strings.TrimSpace(*a.Line2); line2 != "" {
			out.Line2 = &line2
		}
	}
	if out.Country == "" {
		out.Country = "US"
	}
	return out
}

// Value marshals the address to JSON.
func (a MailingAddress) Value() (driver.Value, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("mailing address: %w", err)
	}
	return string(payload), nil
}

// Scan decodes a JSON address column.
func (a *MailingAddress) Scan(value interface{}) error {
	if value == nil {
		*a = MailingAddress{}
		return nil
	}
	raw, ok := toString(value)
	if !ok {
		return fmt.Errorf("mailing address: unsupported scan type %T", value)
	}
	if strings.TrimSpace(raw) == "" {
		*a = MailingAddress{}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), a); err != nil {
		return fmt.Errorf("mailing address: %w", err)
	}
	return nil
}

func toString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return "", false
	}
}
