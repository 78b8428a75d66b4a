package service

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"atelier/internal/domain"
	"atelier/internal/models"
	"atelier/internal/repository"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1) // one in-memory database, one connection
	require.NoError(t, db.AutoMigrate(&models.Client{}, &models.ServiceRequest{}, &models.Payment{}))
	return db
}

func testLifecycle(t *testing.T) (*Lifecycle, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	return NewLifecycle(db, repository.NewPaymentRepository(db), repository.NewRequestRepository(db)), db
}

func seedRequest(t *testing.T, db *gorm.DB, cost string) *models.ServiceRequest {
	t.Helper()
	client := &models.Client{Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, db.Create(client).Error)
	req := &models.ServiceRequest{
		ClientID:             client.ID,
		Title:                "Brand site",
		Status:               domain.RequestStatusApproved,
		EstimatedCost:        decimal.RequireFromString(cost),
		AdminDiscountPercent: 10,
		PartialPaymentStatus: domain.PartialStatusNone,
	}
	require.NoError(t, db.Create(req).Error)
	return req
}

func seedPayment(t *testing.T, db *gorm.DB, requestID uint, amount, ref string, sequence int) *models.Payment {
	t.Helper()
	p := &models.Payment{
		RequestID:        requestID,
		Amount:           decimal.RequireFromString(amount),
		Currency:         "USD",
		PaymentMethod:    domain.PaymentMethodCardGateway,
		PaymentType:      domain.PaymentTypeSplit,
		PaymentSequence:  sequence,
		PaymentStatus:    domain.PaymentStatusPending,
		GatewayReference: ref,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func TestConfirmRejectsSecondPaymentForSameInstallment(t *testing.T) {
	lc, db := testLifecycle(t)
	req := seedRequest(t, db, "1000")

	// a customer with two open checkout tabs ends up with two pending
	// intents for the first installment, each under its own reference
	p1 := seedPayment(t, db, req.ID, "500", "pay_tab_a", 1)
	p2 := seedPayment(t, db, req.ID, "500", "pay_tab_b", 1)

	_, err := lc.Confirm(p1.ID)
	require.NoError(t, err)

	_, err = lc.Confirm(p2.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "only one payment per installment may confirm")

	var second models.Payment
	require.NoError(t, db.First(&second, p2.ID).Error)
	assert.Equal(t, domain.PaymentStatusPending, second.PaymentStatus)

	var fresh models.ServiceRequest
	require.NoError(t, db.First(&fresh, req.ID).Error)
	assert.Equal(t, domain.PartialStatusFirstPaid, fresh.PartialPaymentStatus,
		"half the cost collected once is first_paid, not fully_paid")
}

func TestConfirmAdvancesPartialStatusInOrder(t *testing.T) {
	lc, db := testLifecycle(t)
	req := seedRequest(t, db, "1000")
	first := seedPayment(t, db, req.ID, "500", "pay_leg_1", 1)
	second := seedPayment(t, db, req.ID, "500", "pay_leg_2", 2)

	_, err := lc.Confirm(first.ID)
	require.NoError(t, err)
	var fresh models.ServiceRequest
	require.NoError(t, db.First(&fresh, req.ID).Error)
	assert.Equal(t, domain.PartialStatusFirstPaid, fresh.PartialPaymentStatus)

	_, err = lc.Confirm(second.ID)
	require.NoError(t, err)
	require.NoError(t, db.First(&fresh, req.ID).Error)
	assert.Equal(t, domain.PartialStatusFullyPaid, fresh.PartialPaymentStatus)
}

func TestConfirmRejectsTerminalPayment(t *testing.T) {
	lc, db := testLifecycle(t)
	req := seedRequest(t, db, "1000")
	p := seedPayment(t, db, req.ID, "500", "pay_once", 1)

	_, err := lc.Confirm(p.ID)
	require.NoError(t, err)
	_, err = lc.Confirm(p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "double approval must fail, not double-apply")
}

func TestConfirmRejectsOverpayment(t *testing.T) {
	lc, db := testLifecycle(t)
	req := seedRequest(t, db, "1000")
	p1 := seedPayment(t, db, req.ID, "500", "pay_half", 1)
	p2 := seedPayment(t, db, req.ID, "600", "pay_too_much", 2)

	_, err := lc.Confirm(p1.ID)
	require.NoError(t, err)
	_, err = lc.Confirm(p2.ID)
	assert.ErrorIs(t, err, ErrOverpayment)
}

func TestDeleteGuard(t *testing.T) {
	lc, db := testLifecycle(t)
	req := seedRequest(t, db, "1000")
	confirmed := seedPayment(t, db, req.ID, "500", "pay_keep", 1)
	_, err := lc.Confirm(confirmed.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, lc.Delete(confirmed.ID), ErrNotDeletable)

	failed := seedPayment(t, db, req.ID, "500", "pay_gone", 2)
	_, err = lc.Decline(failed.ID, "card declined")
	require.NoError(t, err)
	assert.NoError(t, lc.Delete(failed.ID))
}

func TestRecordManualPaymentConfirmsImmediately(t *testing.T) {
	lc, db := testLifecycle(t)
	req := seedRequest(t, db, "1000")

	p, err := lc.RecordManualPayment(req.ID, decimal.RequireFromString("500"),
		domain.PaymentMethodBankTransfer, mustDate(t, "2026-08-20"), "WIRE-123", "first installment", domain.PaymentTypeSplit)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusConfirmed, p.PaymentStatus)

	var fresh models.ServiceRequest
	require.NoError(t, db.First(&fresh, req.ID).Error)
	assert.Equal(t, domain.PartialStatusFirstPaid, fresh.PartialPaymentStatus)
}
