package repository

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"atelier/internal/domain"
	"atelier/internal/models"
)

// ErrStaleTransition means the payment was not in the expected state when the
// guarded update ran; a concurrent producer (webhook, admin, sweeper) won.
var ErrStaleTransition = errors.New("payment state changed concurrently")

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) DB() *gorm.DB { return r.db }

func (r *PaymentRepository) Create(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByReference(ref string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("gateway_reference = ?", ref).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) Update(p *models.Payment) error {
	return r.db.Save(p).Error
}

// UpdateStatusIf performs the guarded state transition: a conditional update
// keyed on the expected current status, so two concurrent producers cannot
// both succeed. Extra fields are applied in the same statement.
func (r *PaymentRepository) UpdateStatusIf(tx *gorm.DB, id uint, from []string, to string, fields map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["payment_status"] = to
	res := tx.Model(&models.Payment{}).
		Where("id = ? AND payment_status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// DeleteIfDeletable hard-deletes a payment only from a deletable state, in
// one conditional statement. ErrStaleTransition means it was not deletable.
func (r *PaymentRepository) DeleteIfDeletable(id uint) error {
	res := r.db.Where("id = ? AND payment_status IN ?", id, domain.DeletablePaymentStatuses).
		Delete(&models.Payment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// ConfirmedTotal sums confirmed amounts for a request inside tx; callers that
// need read consistency with a transition must pass the same transaction.
func (r *PaymentRepository) ConfirmedTotal(tx *gorm.DB, requestID uint) (decimal.Decimal, error) {
	if tx == nil {
		tx = r.db
	}
	var row struct{ Total decimal.Decimal }
	err := tx.Model(&models.Payment{}).
		Select("COALESCE(SUM(amount), 0) as total").
		Where("request_id = ? AND payment_status = ?", requestID, domain.PaymentStatusConfirmed).
		Scan(&row).Error
	return row.Total, err
}

// HasConfirmedSequence reports whether a confirmed or completed payment
// already exists for the given split leg of a request. excludeID, when
// non-zero, leaves that payment out of the count so a payment can be checked
// against its siblings inside its own confirming transaction.
func (r *PaymentRepository) HasConfirmedSequence(tx *gorm.DB, requestID uint, sequence int, excludeID uint) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	q := tx.Model(&models.Payment{}).
		Where("request_id = ? AND payment_sequence = ? AND payment_status IN ?",
			requestID, sequence,
			[]string{domain.PaymentStatusCompleted, domain.PaymentStatusConfirmed})
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	err := q.Count(&n).Error
	return n > 0, err
}

func (r *PaymentRepository) ListByRequest(requestID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("request_id = ?", requestID).Order("created_at ASC").Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) List(status, method string, page, limit int) ([]models.Payment, int64, error) {
	q := r.db.Model(&models.Payment{})
	if status != "" {
		q = q.Where("payment_status = ?", status)
	}
	if method != "" {
		q = q.Where("payment_method = ?", method)
	}
	var total int64
	q.Count(&total)
	var payments []models.Payment
	err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&payments).Error
	return payments, total, err
}

// ExpireStale cancels pending/processing payments created before cutoff.
// Repeated runs are no-ops once nothing matches the predicate.
func (r *PaymentRepository) ExpireStale(cutoff time.Time) (int64, error) {
	res := r.db.Model(&models.Payment{}).
		Where("payment_status IN ? AND created_at < ?",
			[]string{domain.PaymentStatusPending, domain.PaymentStatusProcessing}, cutoff).
		Updates(map[string]interface{}{
			"payment_status": domain.PaymentStatusCancelled,
			"error_message":  "expired",
		})
	return res.RowsAffected, res.Error
}

// CountStale is the dry-run counterpart of ExpireStale.
func (r *PaymentRepository) CountStale(cutoff time.Time) (int64, error) {
	var n int64
	err := r.db.Model(&models.Payment{}).
		Where("payment_status IN ? AND created_at < ?",
			[]string{domain.PaymentStatusPending, domain.PaymentStatusProcessing}, cutoff).
		Count(&n).Error
	return n, err
}

// CountByStatus returns payment counts grouped by status for the dashboard.
func (r *PaymentRepository) CountByStatus() (map[string]int64, error) {
	var rows []struct {
		PaymentStatus string
		N             int64
	}
	err := r.db.Model(&models.Payment{}).
		Select("payment_status, COUNT(*) as n").
		Group("payment_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.PaymentStatus] = row.N
	}
	return out, nil
}

// ConfirmedRevenue sums all confirmed payment amounts.
func (r *PaymentRepository) ConfirmedRevenue() (decimal.Decimal, error) {
	var row struct{ Total decimal.Decimal }
	err := r.db.Model(&models.Payment{}).
		Select("COALESCE(SUM(amount), 0) as total").
		Where("payment_status = ?", domain.PaymentStatusConfirmed).
		Scan(&row).Error
	return row.Total, err
}
