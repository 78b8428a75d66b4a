package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"atelier/internal/domain"
)

// ServiceRequest is one unit of chargeable work. Cost, discount and link
// fields are mutated only by an admin; status advances by admin action.
type ServiceRequest struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	ClientID             uint            `gorm:"not null;index" json:"client_id"`
	Title                string          `gorm:"size:255;not null" json:"title"`
	Description          string          `gorm:"type:text" json:"description"`
	Status               string          `gorm:"size:20;not null;index;default:'pending'" json:"status"`
	EstimatedCost        decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"estimated_cost"`
	AdminDiscountPercent int             `gorm:"default:10" json:"admin_discount_percent"`
	PaymentLinkToken     *string         `gorm:"uniqueIndex;size:64" json:"payment_link_token"` // nil until an admin issues a link (avoids duplicate '' on the unique index)
	PaymentLinkExpiry    *time.Time      `json:"payment_link_expiry"`
	PartialPaymentStatus string          `gorm:"size:20;not null;default:'none'" json:"partial_payment_status"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	DeletedAt            gorm.DeletedAt  `gorm:"index" json:"-"`

	Client   Client    `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Payments []Payment `gorm:"foreignKey:RequestID" json:"payments,omitempty"`
}

func (ServiceRequest) TableName() string { return "service_requests" }

// LinkExpired reports whether the payment link can no longer be used. An
// expired link makes the payment page unusable regardless of payment state.
func (r *ServiceRequest) LinkExpired(now time.Time) bool {
	return r.PaymentLinkExpiry == nil || now.After(*r.PaymentLinkExpiry)
}

// Chargeable reports whether a new payment may be created against this request.
func (r *ServiceRequest) Chargeable() bool {
	return r.Status == domain.RequestStatusApproved && r.EstimatedCost.GreaterThan(decimal.Zero)
}
