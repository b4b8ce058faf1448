package payu

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"
)

// Signer computes and verifies PayU-style salted SHA-512 hashes. The request
// and reply directions hash different field sequences.
type Signer struct {
	key  string
	salt string
}

// NewSigner creates a signer from the merchant key and salt.
func NewSigner(cfg Config) (*Signer, error) {
	key := strings.TrimSpace(cfg.MerchantKey)
	salt := strings.TrimSpace(cfg.Salt)
	if key == "" || salt == "" {
		return nil, errors.New("payu merchant key and salt are required")
	}
	return &Signer{key: key, salt: salt}, nil
}

// MerchantKey returns the public merchant key sent with every request.
func (s *Signer) MerchantKey() string {
	return s.key
}

// RequestHash signs an outbound payment request:
// key|txnid|amount|productinfo|firstname|email|udf1|udf2|udf3|udf4|udf5||||||salt
func (s *Signer) RequestHash(req PaymentRequest) string {
	fields := []string{
		s.key,
		req.TxnID,
		req.Amount,
		req.ProductInfo,
		req.FirstName,
		req.Email,
		req.UDF[0], req.UDF[1], req.UDF[2], req.UDF[3], req.UDF[4],
		"", "", "", "", "",
		s.salt,
	}
	return sha512Hex(strings.Join(fields, "|"))
}

// ReplyHash computes the hash the gateway attaches to a callback:
// [additionalCharges|]salt|status||||||udf5|udf4|udf3|udf2|udf1|email|firstname|productinfo|amount|txnid|key
func (s *Signer) ReplyHash(rep Reply) string {
	fields := make([]string, 0, 18)
	if rep.AdditionalCharges != "" {
		fields = append(fields, rep.AdditionalCharges)
	}
	fields = append(fields,
		s.salt,
		rep.Status,
		"", "", "", "", "",
		rep.UDF[4], rep.UDF[3], rep.UDF[2], rep.UDF[1], rep.UDF[0],
		rep.Email,
		rep.FirstName,
		rep.ProductInfo,
		rep.Amount,
		rep.TxnID,
		s.key,
	)
	return sha512Hex(strings.Join(fields, "|"))
}

// VerifyReply recomputes the reply hash with the server's own key and salt
// and compares it to the hash carried by the callback in constant time.
func (s *Signer) VerifyReply(rep Reply) bool {
	if rep.Key != "" && rep.Key != s.key {
		return false
	}
	return verifyHex(s.ReplyHash(rep), rep.Hash)
}

func sha512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

func verifyHex(expected, got string) bool {
	sig := strings.TrimSpace(got)
	if sig == "" {
		return false
	}
	gotBytes, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	expectedBytes, err := hex.DecodeString(expected)
	if err != nil {
		return false
	}
	return hmac.Equal(expectedBytes, gotBytes)
}

// FormFields returns the full set of parameters the browser posts to the
// gateway, including the request hash. surl and furl both point at
// callbackURL so every outcome passes through signature verification.
func (s *Signer) FormFields(req PaymentRequest, callbackURL string) map[string]string {
	fields := map[string]string{
		"key":         s.key,
		"txnid":       req.TxnID,
		"amount":      req.Amount,
		"productinfo": req.ProductInfo,
		"firstname":   req.FirstName,
		"email":       req.Email,
		"phone":       req.Phone,
		"surl":        callbackURL,
		"furl":        callbackURL,
		"hash":        s.RequestHash(req),
	}
	for i, v := range req.UDF {
		fields["udf"+string(rune('1'+i))] = v
	}
	return fields
}
