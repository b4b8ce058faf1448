package models

import "time"

// ProofStatus is the review state of a manually submitted payment proof.
type ProofStatus string

const (
	ProofPending  ProofStatus = "pending"
	ProofVerified ProofStatus = "verified"
	ProofRejected ProofStatus = "rejected"
)

// ParseProofStatus accepts the three known states only.
func ParseProofStatus(s string) (ProofStatus, bool) {
	switch st := ProofStatus(s); st {
	case ProofPending, ProofVerified, ProofRejected:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transition is possible.
func (s ProofStatus) Terminal() bool {
	switch s {
	case ProofVerified, ProofRejected:
		return true
	case ProofPending:
		return false
	}
	return false
}

// ProofAction is an admin decision on a pending proof.
type ProofAction string

const (
	ProofActionVerify ProofAction = "verify"
	ProofActionReject ProofAction = "reject"
)

func ParseProofAction(s string) (ProofAction, bool) {
	switch a := ProofAction(s); a {
	case ProofActionVerify, ProofActionReject:
		return a, true
	}
	return "", false
}

// DefaultRejectionReason is stored when an admin rejects without a reason.
const DefaultRejectionReason = "Invalid payment proof"

// PaymentProof is a manually submitted claim of an out-of-band transfer.
type PaymentProof struct {
	ID                    string      `gorm:"type:char(36);primaryKey" json:"id"`
	StudentID             string      `gorm:"type:varchar(64);not null;index:idx_payment_proofs_student_item,priority:1" json:"student_id"`
	ItemType              ItemType    `gorm:"type:varchar(20);not null;index:idx_payment_proofs_student_item,priority:2" json:"item_type"`
	ItemID                string      `gorm:"type:varchar(64);not null;index:idx_payment_proofs_student_item,priority:3" json:"item_id"`
	Amount                int64       `gorm:"not null" json:"amount"`
	ExpectedAmount        int64       `gorm:"not null" json:"expected_amount"`
	ExternalTransactionID string      `gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_proofs_external_txn" json:"external_transaction_id"`
	EvidenceRef           string      `gorm:"type:varchar(512);not null" json:"evidence_ref"`
	PromoCode             *string     `gorm:"type:varchar(50);default:null" json:"promo_code,omitempty"`
	Status                ProofStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	RejectionReason       *string     `gorm:"type:text" json:"rejection_reason,omitempty"`
	SubmittedAt           time.Time   `gorm:"not null;index" json:"submitted_at"`
	DecidedAt             *time.Time  `gorm:"type:timestamp;default:null" json:"decided_at,omitempty"`
	DecidedBy             *string     `gorm:"type:varchar(100);default:null" json:"decided_by,omitempty"`
}

// Item returns the referenced course or internship.
func (p PaymentProof) Item() ItemRef {
	return ItemRef{Type: p.ItemType, ID: p.ItemID}
}
