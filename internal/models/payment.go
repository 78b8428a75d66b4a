package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is one attempted or completed transfer of money against exactly one
// ServiceRequest. Amount is always USD, the currency of record, regardless of
// rail. There is no soft-delete column; the only delete path is the guarded
// admin one, and confirmed payments never qualify for it.
type Payment struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	RequestID       uint            `gorm:"not null;index" json:"request_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency        string          `gorm:"size:3;not null;default:'USD'" json:"currency"`
	PaymentMethod   string          `gorm:"size:20;not null;index" json:"payment_method"`
	PaymentType     string          `gorm:"size:10;not null" json:"payment_type"`
	PaymentSequence int             `gorm:"not null;default:1" json:"payment_sequence"` // 1 or 2 for split
	PaymentStatus   string          `gorm:"size:20;not null;index;default:'pending'" json:"payment_status"`

	// Gateway rail
	GatewayReference string `gorm:"uniqueIndex;size:128" json:"gateway_reference"`

	// Crypto rail
	CryptoAddress         string          `gorm:"size:128" json:"crypto_address,omitempty"`
	CryptoNetwork         string          `gorm:"size:32" json:"crypto_network,omitempty"`
	CryptoAmount          decimal.Decimal `gorm:"type:decimal(24,8);default:0" json:"crypto_amount,omitempty"`
	CryptoSymbol          string          `gorm:"size:10" json:"crypto_symbol,omitempty"`
	CryptoTransactionHash string          `gorm:"size:128" json:"crypto_transaction_hash,omitempty"`
	CryptoConfirmations   int             `gorm:"default:0" json:"crypto_confirmations,omitempty"`

	AdminNotes   string     `gorm:"type:text" json:"admin_notes,omitempty"`
	ErrorMessage string     `gorm:"size:512" json:"error_message,omitempty"`
	ConfirmedAt  *time.Time `json:"confirmed_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Request ServiceRequest `gorm:"foreignKey:RequestID" json:"-"`
}

func (Payment) TableName() string { return "payments" }
