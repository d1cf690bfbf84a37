package nowpayments

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA512 of the sorted IPN body.
const SignatureHeader = "x-nowpayments-sig"

var (
	ErrMissingSignature = errors.New("missing ipn signature")
	ErrInvalidSignature = errors.New("invalid ipn signature")
)

// IPN is an instant payment notification delivered to the callback URL.
type IPN struct {
	PaymentID     json.Number `json:"payment_id"`
	PaymentStatus string      `json:"payment_status"`
	PayAddress    string      `json:"pay_address"`
	PriceAmount   json.Number `json:"price_amount"`
	PriceCurrency string      `json:"price_currency"`
	PayAmount     json.Number `json:"pay_amount"`
	ActuallyPaid  json.Number `json:"actually_paid"`
	PayCurrency   string      `json:"pay_currency"`
	OrderID       string      `json:"order_id"`
	UpdatedAt     json.Number `json:"updated_at"`
}

// ParseIPN decodes an IPN body.
func ParseIPN(payload []byte) (*IPN, error) {
	var ipn IPN
	if err := json.Unmarshal(payload, &ipn); err != nil {
		return nil, err
	}
	return &ipn, nil
}

// VerifyIPN checks signature against the body re-encoded with sorted keys.
func VerifyIPN(payload []byte, signature, secret string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	expected, err := Sign(payload, secret)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the hex HMAC-SHA512 NOWPayments expects for payload.
func Sign(payload []byte, secret string) (string, error) {
	canonical, err := sortedJSON(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// sortedJSON re-encodes payload with object keys in lexical order at every
// depth. encoding/json sorts map keys; numbers keep their original text.
func sortedJSON(payload []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
