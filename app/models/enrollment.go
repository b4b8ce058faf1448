package models

import (
	"fmt"
	"time"
)

// EnrollmentStatus is the lifecycle state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
)

// ActivationSource names the payment path that activated an enrollment.
type ActivationSource string

const (
	ActivatedViaGateway ActivationSource = "gateway"
	ActivatedViaProof   ActivationSource = "proof"
)

// Enrollment grants a student access to a course or internship. Only the
// enrollment activator writes these rows.
type Enrollment struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	StudentID     string           `gorm:"type:varchar(64);not null;index:ux_enrollments_student_item,unique,priority:1" json:"student_id"`
	ItemType      ItemType         `gorm:"type:varchar(20);not null;index:ux_enrollments_student_item,unique,priority:2" json:"item_type"`
	ItemID        string           `gorm:"type:varchar(64);not null;index:ux_enrollments_student_item,unique,priority:3" json:"item_id"`
	Status        EnrollmentStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	Progress      int              `gorm:"not null;default:0" json:"progress"`
	Score         *float64         `gorm:"type:decimal(5,2);default:null" json:"score,omitempty"`
	ActivatedVia  ActivationSource `gorm:"type:varchar(20);not null" json:"activated_via"`
	ActivationRef string           `gorm:"type:varchar(100);not null" json:"activation_ref"`
	AmountPaid    int64            `gorm:"not null;default:0" json:"amount_paid"`
	CompletedAt   *time.Time       `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// Item returns the enrolled item reference.
func (e Enrollment) Item() ItemRef {
	return ItemRef{Type: e.ItemType, ID: e.ItemID}
}

// SourceRef is the stable reference completion credentials use to point
// back at this enrollment.
func (e Enrollment) SourceRef() string {
	return fmt.Sprintf("%s:%d", e.ItemType, e.ID)
}
