package payu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuelReschke/CertLedger/internal/pkg/env"
)

// Config holds merchant credentials and redirect targets. Salt never leaves
// the server.
type Config struct {
	MerchantKey string `json:"merchant_key"`
	Salt        string `json:"-"`
	// PaymentURL is the gateway endpoint the browser form posts to.
	PaymentURL string `json:"payment_url"`
	// CallbackURL receives both the success and the failure redirect.
	CallbackURL string `json:"callback_url"`
}

// LoadConfig reads PAYU_* variables from the environment.
func LoadConfig() Config {
	return Config{
		MerchantKey: env.GetEnv("PAYU_MERCHANT_KEY", ""),
		Salt:        env.GetEnv("PAYU_SALT", ""),
		PaymentURL:  env.GetEnv("PAYU_PAYMENT_URL", "https://test.payu.in/_payment"),
		CallbackURL: env.GetEnv("PAYU_CALLBACK_URL", "http://localhost:4000/api/v1/payments/gateway/callback"),
	}
}

// PaymentRequest is the signed part of an outbound payment form.
type PaymentRequest struct {
	TxnID       string
	Amount      string
	ProductInfo string
	FirstName   string
	Email       string
	Phone       string
	UDF         [5]string
}

// Reply is the callback posted back by the gateway.
type Reply struct {
	Key               string
	TxnID             string
	Amount            string
	ProductInfo       string
	FirstName         string
	Email             string
	Status            string
	UnmappedStatus    string
	MihPayID          string
	AdditionalCharges string
	UDF               [5]string
	Hash              string
	ErrorMessage      string
}

// ParseReply extracts a Reply from posted form values.
func ParseReply(get func(key string) string) Reply {
	r := Reply{
		Key:               strings.TrimSpace(get("key")),
		TxnID:             strings.TrimSpace(get("txnid")),
		Amount:            strings.TrimSpace(get("amount")),
		ProductInfo:       get("productinfo"),
		FirstName:         get("firstname"),
		Email:             strings.TrimSpace(get("email")),
		Status:            strings.TrimSpace(get("status")),
		UnmappedStatus:    strings.TrimSpace(get("unmappedstatus")),
		MihPayID:          strings.TrimSpace(get("mihpayid")),
		AdditionalCharges: strings.TrimSpace(get("additionalCharges")),
		Hash:              strings.TrimSpace(get("hash")),
		ErrorMessage:      get("error_Message"),
	}
	for i := range r.UDF {
		r.UDF[i] = get(fmt.Sprintf("udf%d", i+1))
	}
	return r
}

// Fields returns the reply as a flat map for audit storage. The hash is
// kept so forged callbacks can be analysed later.
func (r Reply) Fields() map[string]string {
	m := map[string]string{
		"key":            r.Key,
		"txnid":          r.TxnID,
		"amount":         r.Amount,
		"productinfo":    r.ProductInfo,
		"firstname":      r.FirstName,
		"email":          r.Email,
		"status":         r.Status,
		"unmappedstatus": r.UnmappedStatus,
		"mihpayid":       r.MihPayID,
		"hash":           r.Hash,
	}
	if r.AdditionalCharges != "" {
		m["additionalCharges"] = r.AdditionalCharges
	}
	if r.ErrorMessage != "" {
		m["error_Message"] = r.ErrorMessage
	}
	for i, v := range r.UDF {
		m[fmt.Sprintf("udf%d", i+1)] = v
	}
	return m
}

// FormatAmount renders whole currency units the way they are signed and
// posted, e.g. 500 -> "500.00".
func FormatAmount(units int64) string {
	return strconv.FormatInt(units, 10) + ".00"
}

// ParseAmount parses a gateway amount string into whole units. Fractions are
// rejected because prices are whole units.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && strings.Trim(frac, "0") != "" {
		return 0, fmt.Errorf("amount %q has a fractional part", s)
	}
	return strconv.ParseInt(whole, 10, 64)
}
