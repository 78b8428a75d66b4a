package repository

import (
	"time"

	"gorm.io/gorm"

	"atelier/internal/domain"
	"atelier/internal/models"
)

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Create(req *models.ServiceRequest) error {
	return r.db.Create(req).Error
}

func (r *RequestRepository) GetByID(id uint) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	if err := r.db.Preload("Client").First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepository) GetByLinkToken(token string) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	if err := r.db.Preload("Client").Where("payment_link_token = ?", token).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepository) Update(req *models.ServiceRequest) error {
	return r.db.Save(req).Error
}

func (r *RequestRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	return r.db.Model(&models.ServiceRequest{}).Where("id = ?", id).Updates(fields).Error
}

func (r *RequestRepository) List(status string, page, limit int) ([]models.ServiceRequest, int64, error) {
	q := r.db.Model(&models.ServiceRequest{}).Preload("Client")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	q.Count(&total)
	var reqs []models.ServiceRequest
	err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&reqs).Error
	return reqs, total, err
}

// ClearExpiredLinks retires payment links past their expiry so the payment
// page refuses new charge attempts. Returns the number of links cleared.
func (r *RequestRepository) ClearExpiredLinks(cutoff time.Time) (int64, error) {
	res := r.db.Model(&models.ServiceRequest{}).
		Where("payment_link_expiry IS NOT NULL AND payment_link_expiry < ?", cutoff).
		Updates(map[string]interface{}{"payment_link_token": nil, "payment_link_expiry": nil})
	return res.RowsAffected, res.Error
}

func (r *RequestRepository) CountByStatus(status string) (int64, error) {
	var n int64
	err := r.db.Model(&models.ServiceRequest{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

// CountExpiredLinks is the dry-run counterpart of ClearExpiredLinks.
func (r *RequestRepository) CountExpiredLinks(cutoff time.Time) (int64, error) {
	var n int64
	err := r.db.Model(&models.ServiceRequest{}).
		Where("payment_link_expiry IS NOT NULL AND payment_link_expiry < ?", cutoff).
		Count(&n).Error
	return n, err
}

// statuses an admin may move a request into
var allowedRequestStatuses = map[string]bool{
	domain.RequestStatusPending:    true,
	domain.RequestStatusApproved:   true,
	domain.RequestStatusInProgress: true,
	domain.RequestStatusCompleted:  true,
	domain.RequestStatusDeclined:   true,
	domain.RequestStatusCancelled:  true,
}

func IsValidRequestStatus(s string) bool { return allowedRequestStatuses[s] }
