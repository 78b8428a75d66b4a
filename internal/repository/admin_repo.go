package repository

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"atelier/internal/models"
)

// DashboardStats is the admin overview: confirmed revenue plus workload counts.
type DashboardStats struct {
	TotalClients     int64            `json:"total_clients"`
	TotalRequests    int64            `json:"total_requests"`
	PendingRequests  int64            `json:"pending_requests"`
	ConfirmedRevenue decimal.Decimal  `json:"confirmed_revenue"`
	PaymentsByStatus map[string]int64 `json:"payments_by_status"`
}

type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) GetByEmail(email string) (*models.AdminUser, error) {
	var u models.AdminUser
	if err := r.db.Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *AdminRepository) GetByID(id uint) (*models.AdminUser, error) {
	var u models.AdminUser
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *AdminRepository) Create(u *models.AdminUser) error {
	return r.db.Create(u).Error
}

func (r *AdminRepository) Update(u *models.AdminUser) error {
	return r.db.Save(u).Error
}

func (r *AdminRepository) GetDashboardStats(payments *PaymentRepository, requests *RequestRepository) (*DashboardStats, error) {
	var s DashboardStats
	r.db.Model(&models.Client{}).Count(&s.TotalClients)
	r.db.Model(&models.ServiceRequest{}).Count(&s.TotalRequests)

	pending, err := requests.CountByStatus("pending")
	if err != nil {
		return nil, err
	}
	s.PendingRequests = pending

	s.ConfirmedRevenue, err = payments.ConfirmedRevenue()
	if err != nil {
		return nil, err
	}
	s.PaymentsByStatus, err = payments.CountByStatus()
	if err != nil {
		return nil, err
	}
	return &s, nil
}
