package domain

const (
	RoleAdmin = "ADMIN"
)

// ServiceRequest lifecycle.
const (
	RequestStatusPending    = "pending"
	RequestStatusApproved   = "approved"
	RequestStatusInProgress = "in_progress"
	RequestStatusCompleted  = "completed"
	RequestStatusDeclined   = "declined"
	RequestStatusCancelled  = "cancelled"
)

// Payment lifecycle. "confirmed" is the only state that counts toward a
// request's paid total; it is reachable solely through the guarded transition
// in the lifecycle service.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusConfirmed  = "confirmed"
	PaymentStatusFailed     = "failed"
	PaymentStatusCancelled  = "cancelled"
	PaymentStatusDeclined   = "declined"
)

const (
	PaymentMethodCardGateway  = "card_gateway"
	PaymentMethodCrypto       = "crypto"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodManual       = "manual"
)

const (
	PaymentTypeSplit = "split"
	PaymentTypeFull  = "full"
)

const (
	PartialStatusNone      = "none"
	PartialStatusFirstPaid = "first_paid"
	PartialStatusFullyPaid = "fully_paid"
)

// DeletablePaymentStatuses are the only states a payment may be hard-deleted
// from. Confirmed money movement is never destroyed.
var DeletablePaymentStatuses = []string{
	PaymentStatusFailed,
	PaymentStatusCancelled,
	PaymentStatusDeclined,
}

// ApprovablePaymentStatuses are the states an admin may approve into confirmed.
var ApprovablePaymentStatuses = []string{
	PaymentStatusPending,
	PaymentStatusProcessing,
	PaymentStatusCompleted,
}

func IsDeletablePaymentStatus(s string) bool {
	for _, d := range DeletablePaymentStatuses {
		if s == d {
			return true
		}
	}
	return false
}

func IsTerminalPaymentStatus(s string) bool {
	return s == PaymentStatusConfirmed || IsDeletablePaymentStatus(s)
}
