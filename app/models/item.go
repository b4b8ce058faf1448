package models

import (
	"fmt"
	"strings"
)

// ItemType is the kind of purchasable item.
type ItemType string

const (
	ItemCourse     ItemType = "course"
	ItemInternship ItemType = "internship"
)

// ParseItemType normalises s and reports whether it names a known item type.
func ParseItemType(s string) (ItemType, bool) {
	switch t := ItemType(strings.ToLower(strings.TrimSpace(s))); t {
	case ItemCourse, ItemInternship:
		return t, true
	}
	return "", false
}

// ItemRef references exactly one course or internship.
type ItemRef struct {
	Type ItemType `json:"type"`
	ID   string   `json:"id"`
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}

// Valid reports whether the reference has a known type and a non-empty ID.
func (r ItemRef) Valid() bool {
	_, ok := ParseItemType(string(r.Type))
	return ok && strings.TrimSpace(r.ID) != ""
}

// ItemRefFromIDs builds a reference from the course_id / internship_id pair
// accepted at the HTTP boundary. Exactly one of them must be set.
func ItemRefFromIDs(courseID, internshipID string) (ItemRef, error) {
	courseID = strings.TrimSpace(courseID)
	internshipID = strings.TrimSpace(internshipID)
	switch {
	case courseID != "" && internshipID != "":
		return ItemRef{}, fmt.Errorf("course_id and internship_id are mutually exclusive")
	case courseID != "":
		return ItemRef{Type: ItemCourse, ID: courseID}, nil
	case internshipID != "":
		return ItemRef{Type: ItemInternship, ID: internshipID}, nil
	default:
		return ItemRef{}, fmt.Errorf("course_id or internship_id is required")
	}
}
