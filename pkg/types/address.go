package types

import (
	"fmt"
	"sort"
	"strings"
)

// Address is the structured shipping destination captured at checkout.
// Orders persist it as a JSON column and never rewrite it.
type Address struct {
	Name       string  `json:"name" validate:"required,max=200"`
	Line1      string  `json:"line1" validate:"required,max=200"`
	Line2      *string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City       string  `json:"city" validate:"required,max=100"`
	Region     string  `json:"region" validate:"required,max=100"`
	PostalCode string  `json:"postalCode" validate:"required,max=20"`
	Country    string  `json:"country" validate:"required,len=2"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

// Validate checks the fields every carrier needs, independent of request decoding.
func (a Address) Validate() error {
	missing := []string{}
	for field, value := range map[string]string{
		"name":       a.Name,
		"line1":      a.Line1,
		"city":       a.City,
		"region":     a.Region,
		"postalCode": a.PostalCode,
		"country":    a.Country,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("address missing %s", strings.Join(missing, ", "))
	}
	if len(strings.TrimSpace(a.Country)) != 2 {
		return fmt.Errorf("address country must be an ISO-3166 alpha-2 code")
	}
	return nil
}

// Normalize trims whitespace and upper-cases the country code.
func (a Address) Normalize() Address {
	out := a
	out.Name = strings.TrimSpace(a.Name)
	out.Line1 = strings.TrimSpace(a.Line1)
	out.City = strings.TrimSpace(a.City)
	out.Region = strings.TrimSpace(a.Region)
	out.PostalCode = strings.TrimSpace(a.PostalCode)
	out.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	return out
}
