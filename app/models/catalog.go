package models

import (
	"strings"
	"time"
)

// Student is the read-only projection of a learner maintained by the
// upstream account service.
type Student struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	FirstName string    `gorm:"type:varchar(100);not null" json:"first_name"`
	LastName  string    `gorm:"type:varchar(100);not null;default:''" json:"last_name"`
	Email     string    `gorm:"type:varchar(191);not null;index" json:"email"`
	Phone     string    `gorm:"type:varchar(32);not null;default:''" json:"phone"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Course is a purchasable course. Prices are whole currency units.
type Course struct {
	ID          string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Price       int64     `gorm:"not null;default:0" json:"price"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Internship is a purchasable internship offered by a partner company.
type Internship struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Company   string    `gorm:"type:varchar(255);not null;default:''" json:"company"`
	Price     int64     `gorm:"not null;default:0" json:"price"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CatalogItem is the flattened view of a course or internship used by the
// pricing and issuance paths.
type CatalogItem struct {
	Ref           ItemRef `json:"ref"`
	Title         string  `json:"title"`
	IssuerContext string  `json:"issuer_context"`
	Price         int64   `json:"price"`
}

func (c Course) AsItem() CatalogItem {
	return CatalogItem{Ref: ItemRef{Type: ItemCourse, ID: c.ID}, Title: c.Title, IssuerContext: c.Description, Price: c.Price}
}

func (i Internship) AsItem() CatalogItem {
	return CatalogItem{Ref: ItemRef{Type: ItemInternship, ID: i.ID}, Title: i.Title, IssuerContext: i.Company, Price: i.Price}
}
