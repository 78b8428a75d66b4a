package models

import (
	"time"

	"gorm.io/gorm"
)

// Client is the paying party. Created on first request submission; never
// deleted while it still owns requests or payments.
type Client struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:255;not null" json:"name"`
	Email     string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Phone     string         `gorm:"size:32" json:"phone"`
	Company   string         `gorm:"size:255" json:"company"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Requests []ServiceRequest `gorm:"foreignKey:ClientID" json:"requests,omitempty"`
}

func (Client) TableName() string { return "clients" }
