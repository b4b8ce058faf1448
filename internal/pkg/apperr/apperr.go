package apperr

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Error is the standard application error carried across service boundaries.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	// Wrapped underlying error.
	Err error `json:"-"`
}

// Error returns the JSON representation of the error.
func (e *Error) Error() string {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
		Cause   string `json:"cause,omitempty"`
	}{e.Kind, e.Message, causeString(e.Err)})
	return string(bytes.TrimSpace(buf.Bytes()))
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

func causeString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Kind classifies an error. Every kind has a stable code used by HTTP clients.
type Kind uint8

const (
	Other              Kind = iota // Unclassified error
	Internal                       // Internal error
	Invalid                        // Invalid input, validation error etc
	Unauthorized                   // Missing or wrong credentials
	NotFound                       // Entity does not exist
	AlreadyIssued                  // A credential already references the source record
	AlreadyEnrolled                // Pair already enrolled via another verified proof
	AlreadyDecided                 // Proof is no longer pending
	NotEligible                    // Business precondition unmet
	SignatureMismatch              // Possible forgery of a gateway callback
	NotApplicable                  // Promo code does not apply to the item
	Expired                        // Promo code expired
	UsageLimitReached              // Promo code exhausted
	NoCodeFound                    // No QR code could be read from an image
	DuplicateReference             // External transaction reference already submitted
	AmountMismatch                 // Claimed amount differs from the server quote
)

var kindCodes = map[Kind]string{
	Other:              "unclassified",
	Internal:           "internal_error",
	Invalid:            "invalid_input",
	Unauthorized:       "unauthorized",
	NotFound:           "not_found",
	AlreadyIssued:      "already_issued",
	AlreadyEnrolled:    "already_enrolled",
	AlreadyDecided:     "already_decided",
	NotEligible:        "not_eligible",
	SignatureMismatch:  "signature_mismatch",
	NotApplicable:      "not_applicable",
	Expired:            "expired",
	UsageLimitReached:  "usage_limit_reached",
	NoCodeFound:        "no_code_found",
	DuplicateReference: "duplicate_reference",
	AmountMismatch:     "amount_mismatch",
}

// String returns the stable snake_case code of the kind.
func (k Kind) String() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// E builds an *Error from a mix of Kind, string and error arguments.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case error:
			e.Err = arg
		case string:
			e.Message = arg
		}
	}
	if e.Message == "" {
		e.Message = e.Kind.String()
	}
	return e
}

// KindOf returns the kind of the first *Error in the chain, or Other.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the human readable message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func NotFoundf(msg string) error { return E(NotFound, msg) }

func Invalidf(msg string) error { return E(Invalid, msg) }

func Internalf(msg string, err error) error { return E(Internal, msg, err) }

var (
	As = errors.As
	Is = errors.Is
)
