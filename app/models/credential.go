package models

import "time"

// CredentialKind is the origin of an issued credential.
type CredentialKind string

const (
	CredentialCourse     CredentialKind = "course"
	CredentialInternship CredentialKind = "internship"
	CredentialCustom     CredentialKind = "custom"
)

// ParseCredentialKind normalises a kind received at the boundary.
func ParseCredentialKind(s string) (CredentialKind, bool) {
	switch k := CredentialKind(s); k {
	case CredentialCourse, CredentialInternship, CredentialCustom:
		return k, true
	}
	return "", false
}

// ItemType returns the purchasable item type a completion credential of
// this kind is issued for. Custom credentials have none.
func (k CredentialKind) ItemType() (ItemType, bool) {
	switch k {
	case CredentialCourse:
		return ItemCourse, true
	case CredentialInternship:
		return ItemInternship, true
	case CredentialCustom:
		return "", false
	}
	return "", false
}

// Credential is an issued, verifiable achievement record. Rows are
// immutable once created; corrections are re-issued under a new ID.
type Credential struct {
	ID            uint           `gorm:"primaryKey" json:"-"`
	CredentialID  string         `gorm:"type:varchar(40);not null;uniqueIndex:ux_credentials_credential_id" json:"credential_id"`
	Key           string         `gorm:"type:varchar(40);not null" json:"key"`
	Kind          CredentialKind `gorm:"type:varchar(20);not null;index" json:"kind"`
	SubjectName   string         `gorm:"type:varchar(255);not null" json:"subject_name"`
	Title         string         `gorm:"type:varchar(255);not null" json:"title"`
	IssuerContext string         `gorm:"type:text" json:"issuer_context"`
	IssueDate     time.Time      `gorm:"type:date;not null" json:"issue_date"`
	Score         *float64       `gorm:"type:decimal(5,2);default:null" json:"score,omitempty"`
	SourceRef     *string        `gorm:"type:varchar(100);default:null;uniqueIndex:ux_credentials_source_ref" json:"source_ref,omitempty"`
	StudentID     string         `gorm:"type:varchar(64);not null;default:'';index" json:"student_id,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
