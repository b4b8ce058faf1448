package models

import "time"

// GatewayOutcome is the result of a redirect payment attempt.
type GatewayOutcome string

const (
	GatewayInitiated GatewayOutcome = "initiated"
	GatewaySuccess   GatewayOutcome = "success"
	GatewayFailure   GatewayOutcome = "failure"
	GatewayCancelled GatewayOutcome = "cancelled"
)

// GatewayTransaction is a single redirect payment attempt. Amount and item
// are the locally recorded values and are authoritative for settlement.
type GatewayTransaction struct {
	TxnID             string         `gorm:"column:txnid;type:varchar(64);primaryKey" json:"txnid"`
	StudentID         string         `gorm:"type:varchar(64);not null;index" json:"student_id"`
	ItemType          ItemType       `gorm:"type:varchar(20);not null" json:"item_type"`
	ItemID            string         `gorm:"type:varchar(64);not null" json:"item_id"`
	Amount            int64          `gorm:"not null" json:"amount"`
	ProductInfo       string         `gorm:"type:varchar(255);not null" json:"product_info"`
	FirstName         string         `gorm:"type:varchar(100);not null" json:"first_name"`
	Email             string         `gorm:"type:varchar(191);not null" json:"email"`
	Phone             string         `gorm:"type:varchar(32);not null;default:''" json:"phone"`
	PromoCode         *string        `gorm:"type:varchar(50);default:null" json:"promo_code,omitempty"`
	PromoRedeemed     bool           `gorm:"not null;default:false" json:"promo_redeemed"`
	Signature         string         `gorm:"type:varchar(128);not null" json:"-"`
	ReturnedSignature string         `gorm:"type:varchar(128);not null;default:''" json:"-"`
	Outcome           GatewayOutcome `gorm:"type:varchar(20);not null;default:'initiated';index" json:"outcome"`
	GatewayPaymentID  string         `gorm:"type:varchar(100);not null;default:''" json:"gateway_payment_id,omitempty"`
	SettledAt         *time.Time     `gorm:"type:timestamp;default:null" json:"settled_at,omitempty"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (GatewayTransaction) TableName() string {
	return "gateway_transactions"
}

// Item returns the locally recorded item reference.
func (t GatewayTransaction) Item() ItemRef {
	return ItemRef{Type: t.ItemType, ID: t.ItemID}
}
