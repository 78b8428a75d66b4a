package repository

import (
	"errors"

	"gorm.io/gorm"

	"atelier/internal/models"
)

// ErrClientHasRecords guards referential integrity: a client is never removed
// while it still owns requests or payments.
var ErrClientHasRecords = errors.New("client still owns requests or payments")

type ClientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Create(c *models.Client) error {
	return r.db.Create(c).Error
}

func (r *ClientRepository) GetByID(id uint) (*models.Client, error) {
	var c models.Client
	if err := r.db.First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ClientRepository) GetByEmail(email string) (*models.Client, error) {
	var c models.Client
	if err := r.db.Where("email = ?", email).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindOrCreate returns the client with the given email, creating it from the
// supplied details on first submission.
func (r *ClientRepository) FindOrCreate(c *models.Client) (*models.Client, error) {
	existing, err := r.GetByEmail(c.Email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := r.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ClientRepository) Update(c *models.Client) error {
	return r.db.Save(c).Error
}

func (r *ClientRepository) Delete(id uint) error {
	var requests int64
	r.db.Model(&models.ServiceRequest{}).Where("client_id = ?", id).Count(&requests)
	if requests > 0 {
		return ErrClientHasRecords
	}
	return r.db.Delete(&models.Client{}, id).Error
}

func (r *ClientRepository) List(search string, page, limit int) ([]models.Client, int64, error) {
	q := r.db.Model(&models.Client{})
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("name LIKE ? OR email LIKE ? OR company LIKE ?", like, like, like)
	}
	var total int64
	q.Count(&total)
	var clients []models.Client
	err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&clients).Error
	return clients, total, err
}
