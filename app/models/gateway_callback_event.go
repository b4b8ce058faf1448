package models

import (
	"time"

	"gorm.io/datatypes"
)

// GatewayCallbackEvent stores every callback received from the payment
// gateway, including forged ones, for audit.
type GatewayCallbackEvent struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	TxnID           string         `gorm:"column:txnid;type:varchar(64);not null;index" json:"txnid"`
	Status          string         `gorm:"type:varchar(40);not null;default:''" json:"status"`
	ClaimedAmount   string         `gorm:"type:varchar(40);not null;default:''" json:"claimed_amount"`
	SignatureValid  bool           `gorm:"default:false;index" json:"signature_valid"`
	RemoteIP        string         `gorm:"type:varchar(64);not null;default:''" json:"remote_ip"`
	Payload         datatypes.JSON `json:"payload"`
	ProcessedAt     *time.Time     `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string         `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}
