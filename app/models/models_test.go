package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemRefFromIDs(t *testing.T) {
	ref, err := ItemRefFromIDs("c1", "")
	require.NoError(t, err)
	assert.Equal(t, ItemRef{Type: ItemCourse, ID: "c1"}, ref)

	ref, err = ItemRefFromIDs("", " i9 ")
	require.NoError(t, err)
	assert.Equal(t, ItemRef{Type: ItemInternship, ID: "i9"}, ref)

	_, err = ItemRefFromIDs("c1", "i9")
	assert.Error(t, err)
	_, err = ItemRefFromIDs("", "")
	assert.Error(t, err)
}

func TestPromoScopeCovers(t *testing.T) {
	tests := []struct {
		scope PromoScope
		item  ItemType
		want  bool
	}{
		{PromoScopeBoth, ItemCourse, true},
		{PromoScopeBoth, ItemInternship, true},
		{PromoScopeCourse, ItemCourse, true},
		{PromoScopeCourse, ItemInternship, false},
		{PromoScopeInternship, ItemInternship, true},
		{PromoScope("weird"), ItemCourse, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.scope.Covers(tt.item), "%s covers %s", tt.scope, tt.item)
	}
}

func TestPromoCodeValidate(t *testing.T) {
	p := &PromoCode{Code: "SAVE20", DiscountType: DiscountPercentage, DiscountValue: 20, ApplicableTo: PromoScopeBoth}
	require.NoError(t, p.Validate())

	p.DiscountValue = 120
	assert.Error(t, p.Validate())

	p = &PromoCode{Code: "FLAT", DiscountType: DiscountFlat, DiscountValue: 5000, ApplicableTo: PromoScopeCourse}
	require.NoError(t, p.Validate())

	p.DiscountType = "bogus"
	assert.Error(t, p.Validate())
}

func TestPromoCodeAppliesToItem(t *testing.T) {
	p := &PromoCode{}
	assert.True(t, p.AppliesToItem("anything"))

	p.ApplicableItemIDs = []string{"c1", "c2"}
	assert.True(t, p.AppliesToItem("c2"))
	assert.False(t, p.AppliesToItem("c3"))
}

func TestProofStatusTerminal(t *testing.T) {
	assert.False(t, ProofPending.Terminal())
	assert.True(t, ProofVerified.Terminal())
	assert.True(t, ProofRejected.Terminal())
}

func TestCredentialKindItemType(t *testing.T) {
	it, ok := CredentialCourse.ItemType()
	assert.True(t, ok)
	assert.Equal(t, ItemCourse, it)

	_, ok = CredentialCustom.ItemType()
	assert.False(t, ok)
}
