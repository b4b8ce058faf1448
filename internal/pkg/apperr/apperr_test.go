package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEAndKindOf(t *testing.T) {
	cause := errors.New("boom")
	err := E(NotEligible, "enrollment not completed", cause)

	assert.Equal(t, NotEligible, KindOf(err))
	assert.True(t, IsKind(err, NotEligible))
	assert.False(t, IsKind(err, NotFound))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "enrollment not completed", MessageOf(err))
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("decide: %w", E(AlreadyDecided))
	assert.Equal(t, AlreadyDecided, KindOf(err))
	assert.Equal(t, "already_decided", MessageOf(err))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Other, KindOf(errors.New("x")))
	assert.False(t, IsKind(nil, Other))
}

func TestKindCodesAreUnique(t *testing.T) {
	seen := map[string]Kind{}
	for k, code := range kindCodes {
		if prev, ok := seen[code]; ok {
			t.Fatalf("code %q used by %d and %d", code, prev, k)
		}
		seen[code] = k
	}
}

func TestErrorStringIsJSON(t *testing.T) {
	err := E(SignatureMismatch, "reply hash mismatch")
	assert.JSONEq(t, `{"kind":"signature_mismatch","message":"reply hash mismatch"}`, err.Error())
}
