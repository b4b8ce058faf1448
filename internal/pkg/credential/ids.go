package credential

import (
	"crypto/rand"
	"fmt"
	"strings"
	"unicode"

	"github.com/ManuelReschke/CertLedger/app/models"
)

// Upper-case base36 keeps identifiers readable when typed from paper.
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

const (
	// IDRandomLength random base36 characters in a public ID (~62 bits).
	IDRandomLength = 12
	// KeyLength random base36 characters in a verification key (~103 bits).
	KeyLength = 20

	maxInitials = 4
)

var kindPrefix = map[models.CredentialKind]string{
	models.CredentialCourse:     "CRS",
	models.CredentialInternship: "INT",
	models.CredentialCustom:     "CUS",
}

// RandomString returns a cryptographically secure base36 string.
func RandomString(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid length: %d", length)
	}

	// Rejection sampling to avoid modulo bias.
	// 252 is the largest multiple of 36 below 256.
	const maxRandomByte = 252

	out := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}

		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			out[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(out), nil
}

// Initials returns up to four upper-case initials taken from the words of
// title, e.g. "Intro to Go Programming" -> "ITGP".
func Initials(title string) string {
	var b strings.Builder
	for _, word := range strings.FieldsFunc(title, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		r := []rune(word)[0]
		if r > unicode.MaxASCII {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if b.Len() == maxInitials {
			break
		}
	}
	return b.String()
}

// NewCredentialID generates a public credential ID of the form
// PREFIX-INITIALS-RANDOM. The initials segment is omitted for titles
// without usable characters.
func NewCredentialID(kind models.CredentialKind, title string) (string, error) {
	prefix, ok := kindPrefix[kind]
	if !ok {
		return "", fmt.Errorf("unknown credential kind %q", kind)
	}
	random, err := RandomString(IDRandomLength)
	if err != nil {
		return "", err
	}
	if initials := Initials(title); initials != "" {
		return prefix + "-" + initials + "-" + random, nil
	}
	return prefix + "-" + random, nil
}

// NewKey generates an independent verification key.
func NewKey() (string, error) {
	return RandomString(KeyLength)
}

// NormalizeID canonicalises an ID typed or scanned by a human.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
