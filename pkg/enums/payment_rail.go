package enums

import (
	"fmt"
	"strings"
)

// PaymentRail identifies the external payment network an order settles through.
type PaymentRail string

const (
	PaymentRailCard   PaymentRail = "card"
	PaymentRailCrypto PaymentRail = "crypto"
)

var validPaymentRails = []PaymentRail{
	PaymentRailCard,
	PaymentRailCrypto,
}

func (r PaymentRail) String() string {
	return string(r)
}

// IsValid reports whether the value is a supported PaymentRail.
func (r PaymentRail) IsValid() bool {
	for _, candidate := range validPaymentRails {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParsePaymentRail converts raw input into a PaymentRail, ignoring case.
func ParsePaymentRail(value string) (PaymentRail, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentRails {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment rail %q", value)
}
