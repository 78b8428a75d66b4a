package service

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"atelier/internal/domain"
	"atelier/internal/models"
	"atelier/internal/repository"
	"atelier/pkg/cryptorail"
	"atelier/pkg/quote"
)

var (
	// ErrInvalidTransition covers double-approval, confirming a terminal
	// payment and similar operator mistakes. Never silently ignored.
	ErrInvalidTransition = errors.New("invalid payment state transition")
	ErrNotDeletable      = errors.New("only failed, cancelled or declined payments may be deleted")
	ErrOverpayment       = errors.New("confirming this payment would exceed the request's balance due")
	ErrMissingReference  = errors.New("a payment reference is required")
	ErrInvalidAmount     = errors.New("payment amount must be greater than zero")
	ErrAmountExceedsDue  = errors.New("amount exceeds the remaining balance due")
	ErrBadTransactionHash = errors.New("transaction hash does not match the network format")
)

// Lifecycle owns every transition a payment can make. The webhook handler,
// the admin API and the sweeper all go through here, so the "only one winner"
// rule under concurrent delivery is enforced in a single place.
type Lifecycle struct {
	db       *gorm.DB
	payments *repository.PaymentRepository
	requests *repository.RequestRepository
}

func NewLifecycle(db *gorm.DB, payments *repository.PaymentRepository, requests *repository.RequestRepository) *Lifecycle {
	return &Lifecycle{db: db, payments: payments, requests: requests}
}

// Confirm moves a payment into the terminal confirmed state and recomputes
// the owning request's paid total and partial_payment_status in the same
// transaction, so no observer can see a confirmed payment with a stale
// aggregate. The guarded update makes concurrent confirms lose cleanly.
func (l *Lifecycle) Confirm(paymentID uint) (*models.Payment, error) {
	var confirmed *models.Payment
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		if err := tx.First(&p, paymentID).Error; err != nil {
			return err
		}
		if domain.IsTerminalPaymentStatus(p.PaymentStatus) {
			return fmt.Errorf("%w: payment %d is already %s", ErrInvalidTransition, p.ID, p.PaymentStatus)
		}

		// at most one confirmed payment per split leg; two pending intents
		// for the same leg (each with its own reference) must not both land
		taken, err := l.payments.HasConfirmedSequence(tx, p.RequestID, p.PaymentSequence, p.ID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: sequence %d of request %d already has a confirmed payment",
				ErrInvalidTransition, p.PaymentSequence, p.RequestID)
		}

		var req models.ServiceRequest
		if err := tx.First(&req, p.RequestID).Error; err != nil {
			return err
		}
		total, err := l.payments.ConfirmedTotal(tx, p.RequestID)
		if err != nil {
			return err
		}
		due := balanceDue(&req, &p)
		if total.Add(p.Amount).GreaterThan(due) {
			return fmt.Errorf("%w: %s confirmed + %s > %s due", ErrOverpayment,
				total.StringFixed(2), p.Amount.StringFixed(2), due.StringFixed(2))
		}

		now := time.Now()
		if err := l.payments.UpdateStatusIf(tx, p.ID, domain.ApprovablePaymentStatuses,
			domain.PaymentStatusConfirmed, map[string]interface{}{"confirmed_at": now}); err != nil {
			if errors.Is(err, repository.ErrStaleTransition) {
				return fmt.Errorf("%w: payment %d changed concurrently", ErrInvalidTransition, p.ID)
			}
			return err
		}
		if err := l.recomputeAggregate(tx, &req, due); err != nil {
			return err
		}

		p.PaymentStatus = domain.PaymentStatusConfirmed
		p.ConfirmedAt = &now
		confirmed = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Lifecycle] payment %d confirmed (request %d, %s %s)",
		confirmed.ID, confirmed.RequestID, confirmed.Amount.StringFixed(2), confirmed.Currency)
	return confirmed, nil
}

// Approve is the admin path into confirmed, and the only path for rails without
// an authoritative real-time callback. observedRef, when supplied, is stored
// in the admin notes for the audit trail.
func (l *Lifecycle) Approve(paymentID uint, observedRef string) (*models.Payment, error) {
	if observedRef != "" {
		note := fmt.Sprintf("approved against observed reference %s", observedRef)
		if err := l.appendNote(paymentID, note); err != nil {
			return nil, err
		}
	}
	return l.Confirm(paymentID)
}

// Decline marks a non-terminal payment declined, recording the reason.
func (l *Lifecycle) Decline(paymentID uint, reason string) (*models.Payment, error) {
	p, err := l.payments.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if domain.IsTerminalPaymentStatus(p.PaymentStatus) {
		return nil, fmt.Errorf("%w: payment %d is already %s", ErrInvalidTransition, p.ID, p.PaymentStatus)
	}
	fields := map[string]interface{}{"error_message": reason}
	if reason != "" {
		fields["admin_notes"] = appendedNote(p.AdminNotes, "declined: "+reason)
	}
	err = l.payments.UpdateStatusIf(nil, p.ID,
		[]string{domain.PaymentStatusPending, domain.PaymentStatusProcessing, domain.PaymentStatusCompleted},
		domain.PaymentStatusDeclined, fields)
	if errors.Is(err, repository.ErrStaleTransition) {
		return nil, fmt.Errorf("%w: payment %d changed concurrently", ErrInvalidTransition, p.ID)
	}
	if err != nil {
		return nil, err
	}
	return l.payments.GetByID(p.ID)
}

// Delete hard-deletes a payment; rejects (never a silent no-op) unless the
// payment is failed, cancelled or declined.
func (l *Lifecycle) Delete(paymentID uint) error {
	if _, err := l.payments.GetByID(paymentID); err != nil {
		return err
	}
	err := l.payments.DeleteIfDeletable(paymentID)
	if errors.Is(err, repository.ErrStaleTransition) {
		return ErrNotDeletable
	}
	return err
}

// ApplyGatewayStatus is the webhook producer. The card gateway reports a
// final authoritative state, so a verified "success" confirms directly;
// repeat deliveries of the same terminal outcome are acknowledged as no-ops
// because gateways routinely redeliver.
func (l *Lifecycle) ApplyGatewayStatus(reference, gatewayStatus string) (*models.Payment, error) {
	p, err := l.payments.GetByReference(reference)
	if err != nil {
		return nil, err
	}
	if domain.IsTerminalPaymentStatus(p.PaymentStatus) {
		log.Printf("[Lifecycle] webhook for %s ignored, payment %d already %s", reference, p.ID, p.PaymentStatus)
		return p, nil
	}
	switch strings.ToLower(gatewayStatus) {
	case "success", "completed":
		return l.Confirm(p.ID)
	case "failed":
		err = l.payments.UpdateStatusIf(nil, p.ID,
			[]string{domain.PaymentStatusPending, domain.PaymentStatusProcessing},
			domain.PaymentStatusFailed, map[string]interface{}{"error_message": "gateway reported failure"})
	case "abandoned", "cancelled":
		err = l.payments.UpdateStatusIf(nil, p.ID,
			[]string{domain.PaymentStatusPending, domain.PaymentStatusProcessing},
			domain.PaymentStatusCancelled, map[string]interface{}{"error_message": "abandoned at checkout"})
	default:
		log.Printf("[Lifecycle] unhandled gateway status %q for %s", gatewayStatus, reference)
		return p, nil
	}
	if errors.Is(err, repository.ErrStaleTransition) {
		// a concurrent producer won; redeliveries land here
		return l.payments.GetByID(p.ID)
	}
	if err != nil {
		return nil, err
	}
	return l.payments.GetByID(p.ID)
}

// SubmitCryptoHash records a customer-submitted transaction hash after a
// syntactic format check and moves the payment to processing. Crypto payments
// never self-confirm from format validation; confirmation requires the admin
// verify action or an authoritative processor webhook.
func (l *Lifecycle) SubmitCryptoHash(paymentID uint, hash string) (*models.Payment, error) {
	p, err := l.payments.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if p.PaymentMethod != domain.PaymentMethodCrypto {
		return nil, fmt.Errorf("%w: payment %d is not a crypto payment", ErrInvalidTransition, p.ID)
	}
	if !cryptorail.ValidateTransactionHash(p.CryptoNetwork, hash) {
		return nil, ErrBadTransactionHash
	}
	err = l.payments.UpdateStatusIf(nil, p.ID,
		[]string{domain.PaymentStatusPending, domain.PaymentStatusProcessing},
		domain.PaymentStatusProcessing, map[string]interface{}{"crypto_transaction_hash": hash})
	if errors.Is(err, repository.ErrStaleTransition) {
		return nil, fmt.Errorf("%w: payment %d is already %s", ErrInvalidTransition, p.ID, p.PaymentStatus)
	}
	if err != nil {
		return nil, err
	}
	return l.payments.GetByID(p.ID)
}

// VerifyCrypto is the operator-initiated confirmation after out-of-band
// inspection of a block explorer. Only a processing payment with a recorded
// hash qualifies.
func (l *Lifecycle) VerifyCrypto(paymentID uint) (*models.Payment, error) {
	p, err := l.payments.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if p.PaymentStatus != domain.PaymentStatusProcessing {
		return nil, fmt.Errorf("%w: payment %d is %s, expected processing", ErrInvalidTransition, p.ID, p.PaymentStatus)
	}
	if p.CryptoTransactionHash == "" {
		return nil, fmt.Errorf("%w: payment %d has no transaction hash to verify", ErrInvalidTransition, p.ID)
	}
	return l.Confirm(p.ID)
}

// RecordManualPayment creates a pre-verified payment for money received out
// of band (bank transfer, cash) and confirms it in the same admin action;
// there is no gateway in the loop to report back.
func (l *Lifecycle) RecordManualPayment(requestID uint, amount decimal.Decimal, method string, date time.Time, ref, notes, paymentType string) (*models.Payment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(ref) == "" {
		return nil, ErrMissingReference
	}
	if method != domain.PaymentMethodBankTransfer && method != domain.PaymentMethodManual {
		method = domain.PaymentMethodManual
	}
	if paymentType != domain.PaymentTypeFull {
		paymentType = domain.PaymentTypeSplit
	}

	req, err := l.requests.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if paymentType != domain.PaymentTypeFull {
		total, err := l.payments.ConfirmedTotal(nil, requestID)
		if err != nil {
			return nil, err
		}
		if amount.GreaterThan(req.EstimatedCost.Sub(total)) {
			return nil, ErrAmountExceedsDue
		}
	}

	sequence := 1
	if status := req.PartialPaymentStatus; status == domain.PartialStatusFirstPaid {
		sequence = 2
	}
	p := &models.Payment{
		RequestID:        requestID,
		Amount:           amount.Round(2),
		Currency:         "USD",
		PaymentMethod:    method,
		PaymentType:      paymentType,
		PaymentSequence:  sequence,
		PaymentStatus:    domain.PaymentStatusPending,
		GatewayReference: ref,
		AdminNotes:       appendedNote(notes, fmt.Sprintf("recorded manually, received %s", date.Format("2006-01-02"))),
	}
	if err := l.payments.Create(p); err != nil {
		return nil, err
	}
	return l.Confirm(p.ID)
}

// balanceDue is what the request can still collect in total: the discounted
// amount when settling as a single full payment, the full cost otherwise.
func balanceDue(req *models.ServiceRequest, p *models.Payment) decimal.Decimal {
	if p.PaymentType == domain.PaymentTypeFull {
		b, err := quote.Calculate(req.EstimatedCost, req.AdminDiscountPercent, domain.PaymentTypeFull, decimal.RequireFromString("0.5"))
		if err == nil {
			return b.Amount
		}
	}
	return req.EstimatedCost
}

// recomputeAggregate refreshes the request's paid total and
// partial_payment_status inside the confirming transaction.
func (l *Lifecycle) recomputeAggregate(tx *gorm.DB, req *models.ServiceRequest, due decimal.Decimal) error {
	total, err := l.payments.ConfirmedTotal(tx, req.ID)
	if err != nil {
		return err
	}
	status := domain.PartialStatusNone
	switch {
	case total.GreaterThanOrEqual(due):
		status = domain.PartialStatusFullyPaid
	case total.GreaterThan(decimal.Zero):
		status = domain.PartialStatusFirstPaid
	}
	return tx.Model(&models.ServiceRequest{}).Where("id = ?", req.ID).
		Update("partial_payment_status", status).Error
}

func (l *Lifecycle) appendNote(paymentID uint, note string) error {
	p, err := l.payments.GetByID(paymentID)
	if err != nil {
		return err
	}
	p.AdminNotes = appendedNote(p.AdminNotes, note)
	return l.payments.Update(p)
}

func appendedNote(existing, note string) string {
	stamp := time.Now().Format("2006-01-02 15:04")
	line := fmt.Sprintf("[%s] %s", stamp, note)
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}
